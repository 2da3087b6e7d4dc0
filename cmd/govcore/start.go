package main

import (
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/axiomesh/axiom-kit/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ganjes-dao/govcore"
	"github.com/ganjes-dao/govcore/core"
	"github.com/ganjes-dao/govcore/repo"
	"github.com/urfave/cli/v2"
)

func start(ctx *cli.Context) error {
	p, err := getRootPath(ctx)
	if err != nil {
		return err
	}
	r, err := repo.Load(p)
	if err != nil {
		return err
	}

	err = log.Initialize(
		log.WithReportCaller(r.Config.Log.ReportCaller),
		log.WithPersist(true),
		log.WithFilePath(filepath.Join(r.Config.RepoRoot, repo.LogsDirName)),
		log.WithFileName(r.Config.Log.Filename),
		log.WithMaxAge(r.Config.Log.MaxAge),
		log.WithRotationTime(r.Config.Log.RotationTime),
	)
	if err != nil {
		return fmt.Errorf("log initialize: %w", err)
	}

	printVersion()

	ledger, err := buildLedger(ctx, r.Config)
	if err != nil {
		return err
	}

	dao, err := core.NewDAO(ctx.Context, r.Config, ledger)
	if err != nil {
		return fmt.Errorf("new dao error: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	handleShutdown(dao, &wg)

	if err := dao.Start(); err != nil {
		return fmt.Errorf("start dao failed: %w", err)
	}

	go logEvents(dao)

	fmt.Println("=============Govcore is ready=============")

	wg.Wait()

	return nil
}

func buildLedger(ctx *cli.Context, config *repo.Config) (core.TokenLedger, error) {
	switch config.Ledger.Mode {
	case "erc20":
		client, err := ethclient.DialContext(ctx.Context, config.Ledger.DialUrl)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", config.Ledger.DialUrl, err)
		}
		return core.NewERC20Ledger(client, common.HexToAddress(config.Ledger.TokenAddress), config.Ledger.CustodianKey)
	case "mem", "":
		supply, ok := new(big.Int).SetString(config.Ledger.TotalSupply, 10)
		if !ok {
			return nil, fmt.Errorf("invalid total supply %q", config.Ledger.TotalSupply)
		}
		return core.NewMemLedger(supply), nil
	default:
		return nil, fmt.Errorf("unknown ledger mode %q", config.Ledger.Mode)
	}
}

// logEvents mirrors the governance event stream into the daemon log, the
// audit trail operators tail.
func logEvents(dao *core.DAO) {
	for ev := range dao.Subscribe() {
		dao.Logger.Infof("event %d %s: proposal=%d multisig=%d actor=%s", ev.Seq, ev.Kind, ev.ProposalID, ev.MultiSigID, ev.Actor.Hex())
	}
}

func printVersion() {
	fmt.Printf("Govcore version: %s-%s-%s\n", govcore.CurrentVersion, govcore.CurrentBranch, govcore.CurrentCommit)
	fmt.Printf("App build date: %s\n", govcore.BuildDate)
	fmt.Printf("System version: %s\n", govcore.Platform)
	fmt.Printf("Golang version: %s\n", govcore.GoVersion)
	fmt.Println()
}

func handleShutdown(dao *core.DAO, wg *sync.WaitGroup) {
	var stop = make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGTERM)
	signal.Notify(stop, syscall.SIGINT)

	go func() {
		<-stop
		fmt.Println("received interrupt signal, shutting down...")
		if err := dao.Stop(); err != nil {
			panic(err)
		}
		wg.Done()
		os.Exit(0)
	}()
}
