package main

import (
	"context"
	"fmt"

	"github.com/kuitang/inkpad/internal/assistant"
	"github.com/kuitang/inkpad/internal/config"
	"github.com/kuitang/inkpad/internal/crypto"
	"github.com/kuitang/inkpad/internal/db"
	"github.com/kuitang/inkpad/internal/errs"
	"github.com/kuitang/inkpad/internal/obs"
	"github.com/kuitang/inkpad/internal/persist"
	"github.com/kuitang/inkpad/internal/s3client"
	"github.com/kuitang/inkpad/internal/workspace"
)

// snapshotKeyVersion is the HKDF version of the bucket sealing key. Bumping it
// makes existing bucket snapshots unreadable.
const snapshotKeyVersion = 1

// app is one opened notebook plus the resources behind its slot.
type app struct {
	cfg     *config.Config
	ws      *workspace.Workspace
	closers []func() error
}

func openApp(ctx context.Context, flags config.Flags) (*app, error) {
	cfg, err := config.Load(flags)
	if err != nil {
		return nil, err
	}
	return openAppWithConfig(ctx, cfg)
}

func openAppWithConfig(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	slot, err := a.openSlot(ctx)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	ws, err := workspace.Open(ctx, workspace.Options{
		Slot:          slot,
		Generator:     newGenerator(cfg),
		Assistant:     cfg.AssistantConfig(),
		AutosaveDelay: cfg.AutosaveDelay,
	})
	if err != nil {
		a.closeResources()
		return nil, err
	}
	a.ws = ws
	return a, nil
}

func newGenerator(cfg *config.Config) assistant.Generator {
	if cfg.NoLLM {
		return assistant.EchoGenerator{}
	}
	return assistant.NewOpenAIGenerator(cfg.OpenAIConfig())
}

// openSlot picks where the snapshot lives: memory, an encrypted SQLite file,
// or a sealed object in a bucket.
func (a *app) openSlot(ctx context.Context) (persist.Slot, error) {
	if a.cfg.Ephemeral {
		return persist.NewMemorySlot(), nil
	}

	master, err := crypto.ParseMasterKey(a.cfg.MasterKey)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "MASTER_KEY is not valid hex", err)
	}

	switch a.cfg.StorageBackend {
	case config.BackendS3:
		client, err := s3client.New(ctx, a.cfg.S3Config())
		if err != nil {
			return nil, errs.Wrap(errs.Unavailable, fmt.Sprintf("connect to bucket %s", a.cfg.AWSBucketName), err)
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return nil, errs.Wrap(errs.Unavailable, fmt.Sprintf("bucket %s is not reachable", a.cfg.AWSBucketName), err)
		}
		slot, err := persist.NewS3Slot(client, persist.SlotName, crypto.DeriveKey(master, crypto.PurposeSnapshot, snapshotKeyVersion))
		if err != nil {
			return nil, errs.Wrap(errs.Internal, "create bucket slot", err)
		}
		return slot, nil
	default:
		database, err := db.Open(a.cfg.DataDir, crypto.DatabaseKeyHex(master))
		if err != nil {
			return nil, errs.Wrap(errs.Unavailable, fmt.Sprintf("open database in %s (wrong MASTER_KEY?)", a.cfg.DataDir), err)
		}
		a.closers = append(a.closers, database.Close)
		obs.From(ctx).Debug("database_opened", "path", database.Path())
		return database.Slot(persist.SlotName), nil
	}
}

// Close flushes pending edits, writes the final snapshot and releases storage.
func (a *app) Close(ctx context.Context) error {
	var closeErr error
	if a.ws != nil {
		if err := a.ws.Close(ctx); err != nil {
			closeErr = errs.Wrap(errs.Unavailable, "failed to save notebook", err)
		}
	}
	a.closeResources()
	return closeErr
}

func (a *app) closeResources() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			obs.Pkg("cli").Warn("close_failed", "error", err.Error())
		}
	}
	a.closers = nil
}

// withApp opens the notebook, runs fn, and always closes. A failed close
// is reported when fn itself succeeded. Commands that never generate a reply
// run without a model so they need no API key.
func (c *cli) withApp(ctx context.Context, needsLLM bool, fn func(a *app) error) (err error) {
	flags := c.flags
	if !needsLLM {
		flags.NoLLM = true
	}
	a, err := openApp(ctx, flags)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := a.Close(context.WithoutCancel(ctx))
		if err == nil {
			err = closeErr
		}
	}()
	return fn(a)
}
