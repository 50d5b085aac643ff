package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gotd/td/bin"
	"github.com/gotd/td/tg"

	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/domain"
)

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...any) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...any)  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...any)  {}
func (nopLogger) Error(ctx context.Context, msg string, fields ...any) {}
func (nopLogger) Fatal(ctx context.Context, msg string, fields ...any) {}
func (l nopLogger) With(fields ...any) domain.Logger                   { return l }

// fakeInvoker answers raw MTProto requests in-process so adapter tests can
// exercise the real generated client surface.
type fakeInvoker struct {
	handle func(ctx context.Context, input bin.Encoder, output bin.Decoder) error
}

func (f *fakeInvoker) Invoke(ctx context.Context, input bin.Encoder, output bin.Decoder) error {
	return f.handle(ctx, input, output)
}

func newTestAdapter(t *testing.T, handle func(ctx context.Context, input bin.Encoder, output bin.Decoder) error) *RosterAdapter {
	t.Helper()
	return NewRosterAdapter(tg.NewClient(&fakeInvoker{handle: handle}), nopLogger{})
}

func TestEnumerateScopesKeepsActiveChannels(t *testing.T) {
	a := newTestAdapter(t, func(ctx context.Context, input bin.Encoder, output bin.Decoder) error {
		req, ok := input.(*tg.MessagesGetDialogsRequest)
		if !ok {
			t.Fatalf("unexpected request type %T", input)
		}
		if req.Limit != dialogPageSize {
			t.Fatalf("expected page size %d, got %d", dialogPageSize, req.Limit)
		}
		out := output.(*tg.MessagesDialogsBox)
		out.Dialogs = &tg.MessagesDialogs{
			Dialogs: []tg.DialogClass{
				&tg.Dialog{Peer: &tg.PeerChannel{ChannelID: 10}, TopMessage: 1},
				&tg.Dialog{Peer: &tg.PeerChannel{ChannelID: 20}, TopMessage: 2},
				&tg.Dialog{Peer: &tg.PeerChat{ChatID: 30}, TopMessage: 3},
			},
			Chats: []tg.ChatClass{
				&tg.Channel{ID: 10, Title: "alpha", AccessHash: 111},
				&tg.Channel{ID: 20, Title: "beta", Left: true, AccessHash: 222},
				&tg.Chat{ID: 30, Title: "legacy"},
			},
		}
		return nil
	})

	scopes, err := a.EnumerateScopes(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scopes) != 1 || scopes[0].ID != 10 || scopes[0].Title != "alpha" {
		t.Fatalf("expected only the active channel, got %+v", scopes)
	}
	// The access hash from the response is remembered for later calls.
	ch, err := a.inputChannel(10)
	if err != nil || ch.AccessHash != 111 {
		t.Fatalf("expected remembered channel hash 111, got %+v (err=%v)", ch, err)
	}
}

func TestEnumerateScopesSurfacesRemoteError(t *testing.T) {
	a := newTestAdapter(t, func(ctx context.Context, input bin.Encoder, output bin.Decoder) error {
		return errors.New("FLOOD_WAIT_30")
	})
	if _, err := a.EnumerateScopes(context.Background()); err == nil {
		t.Fatal("expected the remote error to surface")
	}
}

func TestResolveHandleUsername(t *testing.T) {
	a := newTestAdapter(t, func(ctx context.Context, input bin.Encoder, output bin.Decoder) error {
		req, ok := input.(*tg.ContactsResolveUsernameRequest)
		if !ok {
			t.Fatalf("unexpected request type %T", input)
		}
		if req.Username != "ada" {
			t.Fatalf("expected bare username, got %q", req.Username)
		}
		out := output.(*tg.ContactsResolvedPeer)
		out.Peer = &tg.PeerUser{UserID: 77}
		out.Users = []tg.UserClass{
			&tg.User{ID: 77, AccessHash: 555, FirstName: "Ada", Username: "ada"},
		}
		return nil
	})

	ident, err := a.ResolveHandle(context.Background(), "@ada")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ident.ID != 77 || ident.AccessHash != 555 || ident.Username != "ada" || ident.Broadcast {
		t.Fatalf("resolved wrong identity: %+v", ident)
	}
}

func TestResolveHandleUnknownNumericID(t *testing.T) {
	a := newTestAdapter(t, func(ctx context.Context, input bin.Encoder, output bin.Decoder) error {
		t.Fatalf("no remote call expected for an unknown id, got %T", input)
		return nil
	})

	_, err := a.ResolveHandle(context.Background(), "99")
	if !errors.Is(err, errPeerUnknown) {
		t.Fatalf("expected errPeerUnknown, got %v", err)
	}
}

func TestChangeRightsMapsBannedRights(t *testing.T) {
	var captured tg.ChatBannedRights
	a := newTestAdapter(t, func(ctx context.Context, input bin.Encoder, output bin.Decoder) error {
		req, ok := input.(*tg.ChannelsEditBannedRequest)
		if !ok {
			t.Fatalf("unexpected request type %T", input)
		}
		captured = req.BannedRights
		out := output.(*tg.UpdatesBox)
		out.Updates = &tg.Updates{}
		return nil
	})
	a.channelHashes[5] = 999

	now := time.Unix(100000, 0)
	err := a.ChangeRights(context.Background(), 5,
		domain.PeerRef{Kind: domain.PeerRefID, ID: 77},
		domain.SilenceRights(now, time.Hour),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.ViewMessages {
		t.Fatal("silence must not revoke view access on the wire")
	}
	if !captured.SendMessages || !captured.SendMedia {
		t.Fatalf("silence must revoke send rights on the wire: %+v", captured)
	}
	if captured.UntilDate != int(now.Add(time.Hour).Unix()) {
		t.Fatalf("expected wire until_date %d, got %d", now.Add(time.Hour).Unix(), captured.UntilDate)
	}

	if err := a.ChangeRights(context.Background(), 5,
		domain.PeerRef{Kind: domain.PeerRefID, ID: 77},
		domain.ExcludeRights(),
	); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !captured.ViewMessages || captured.UntilDate != 0 {
		t.Fatalf("exclusion must revoke view access with no expiry on the wire: %+v", captured)
	}
}
