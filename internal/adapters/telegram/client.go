package telegram

import (
	"context"
	"errors"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"

	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/adapters/config"
	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/domain"
)

// Client wraps a running MTProto client. The session file must already be
// authorized; interactive login is deliberately out of scope for a headless
// service.
type Client struct {
	inner *telegram.Client
	api   *tg.Client
}

// NewClient starts the MTProto client in the background and blocks until it
// is connected and the session is confirmed authorized. The returned cleanup
// stops the client and waits for it to exit.
func NewClient(appCtx context.Context, cfgProvider config.Provider, logger domain.Logger) (*Client, func(), error) {
	tgCfg := cfgProvider.Get().Telegram

	inner := telegram.NewClient(tgCfg.APIID, tgCfg.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: tgCfg.SessionFile},
	})

	runCtx, cancel := context.WithCancel(appCtx)
	ready := make(chan error, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		err := inner.Run(runCtx, func(ctx context.Context) error {
			status, err := inner.Auth().Status(ctx)
			if err != nil {
				ready <- err
				return err
			}
			if !status.Authorized {
				err := errors.New("telegram session is not authorized; provision the session file first")
				ready <- err
				return err
			}
			ready <- nil
			logger.Info(ctx, "Telegram client connected and authorized")
			<-ctx.Done()
			return ctx.Err()
		})
		if err != nil && runCtx.Err() == nil {
			logger.Error(runCtx, "Telegram client stopped unexpectedly", "error", err.Error())
		}
	}()

	select {
	case err := <-ready:
		if err != nil {
			cancel()
			<-done
			return nil, nil, err
		}
	case <-done:
		cancel()
		return nil, nil, errors.New("telegram client exited before becoming ready")
	}

	cleanup := func() {
		logger.Info(context.Background(), "Stopping Telegram client...")
		cancel()
		<-done
	}
	return &Client{inner: inner, api: inner.API()}, cleanup, nil
}

// API returns the raw MTProto API surface.
func (c *Client) API() *tg.Client {
	return c.api
}
