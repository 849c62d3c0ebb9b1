package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	members "github.com/goliatone/go-members"
	"github.com/goliatone/go-router"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func main() {
	cfg, err := members.LoadConfigFromEnv()
	if err != nil {
		log.Fatal(err)
	}

	dsn := os.Getenv("MEMBERS_DSN")
	if dsn == "" {
		dsn = "file:members.db?cache=shared&_pragma=foreign_keys(1)"
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		log.Fatal(err)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := createTables(ctx, db); err != nil {
		log.Fatal(err)
	}

	repo := members.NewRepositoryManager(db)
	repo.MustValidate()

	recorder := members.NewRecorder(repo.AnalyticsEvents())
	defer recorder.Close()

	backend := members.NewJWTIdentityBackend(cfg, nil)

	svc := members.NewService(repo, backend, cfg,
		members.WithServiceEventSink(recorder),
	)

	sweeper := members.NewSweeper(repo,
		members.WithSweeperEventSink(recorder),
		members.WithSweeperInterval(cfg.GetSweepInterval()),
	)

	go func() {
		if err := sweeper.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("sweeper stopped: %v", err)
		}
	}()

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:  true,
			StrictRouting: false,
		}))
	})

	members.RegisterMemberRoutes(srv.Router().Group("/"),
		members.WithControllerService(svc),
		members.WithControllerSweeper(sweeper),
	)

	addr := os.Getenv("MEMBERS_HTTP_ADDR")
	if addr == "" {
		addr = ":8580"
	}

	srv.Serve(addr)

	WaitExitSignal()
	cancel()
}

func createTables(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*members.Member)(nil),
		(*members.Credential)(nil),
		(*members.SequenceCounter)(nil),
		(*members.AnalyticsEvent)(nil),
	}

	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}

	return nil
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
