package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/gotd/td/tg"

	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/domain"
)

// memberPageSize is the per-request page size for member scans; the remote
// side caps pages around 200 regardless.
const memberPageSize = 100

// dialogPageSize is the per-request page size for dialog enumeration.
const dialogPageSize = 100

var errPeerUnknown = errors.New("peer is not known to this session")

// RosterAdapter implements domain.RosterService and domain.IdentityDirectory
// over the MTProto API. It keeps the access hashes seen in responses so
// later calls can address the same peers directly; without a stored hash a
// peer cannot be referenced in input form.
type RosterAdapter struct {
	api    *tg.Client
	logger domain.Logger

	mu            sync.Mutex
	channelHashes map[int64]int64 // channel id -> access hash
	userHashes    map[int64]int64 // user id -> access hash
}

// NewRosterAdapter creates a RosterAdapter.
func NewRosterAdapter(api *tg.Client, logger domain.Logger) *RosterAdapter {
	return &RosterAdapter{
		api:           api,
		logger:        logger,
		channelHashes: make(map[int64]int64),
		userHashes:    make(map[int64]int64),
	}
}

// EnumerateScopes walks the dialog list and keeps every channel-like space
// the account has not left. Basic (legacy) groups are skipped: participant
// rights there cannot be edited per member, so they can never be moderable
// scopes.
func (a *RosterAdapter) EnumerateScopes(ctx context.Context) ([]domain.Scope, error) {
	var (
		scopes     []domain.Scope
		seen       = make(map[int64]bool)
		offsetDate int
		offsetID   int
		offsetPeer tg.InputPeerClass = &tg.InputPeerEmpty{}
	)
	for {
		res, err := a.api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
			OffsetDate: offsetDate,
			OffsetID:   offsetID,
			OffsetPeer: offsetPeer,
			Limit:      dialogPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("messages.getDialogs: %w", err)
		}

		var (
			dialogs  []tg.DialogClass
			messages []tg.MessageClass
			chats    []tg.ChatClass
			users    []tg.UserClass
		)
		switch d := res.(type) {
		case *tg.MessagesDialogs:
			dialogs, messages, chats, users = d.Dialogs, d.Messages, d.Chats, d.Users
		case *tg.MessagesDialogsSlice:
			dialogs, messages, chats, users = d.Dialogs, d.Messages, d.Chats, d.Users
		default:
			return scopes, nil // not modified; nothing further to walk
		}

		for _, u := range users {
			if user, ok := u.(*tg.User); ok {
				a.rememberUser(user)
			}
		}
		for _, c := range chats {
			ch, ok := c.(*tg.Channel)
			if !ok || ch.Left || seen[ch.ID] {
				continue
			}
			seen[ch.ID] = true
			a.rememberChannel(ch)
			scopes = append(scopes, domain.Scope{ID: ch.ID, Title: ch.Title})
		}

		if len(dialogs) < dialogPageSize {
			return scopes, nil
		}
		last, ok := dialogs[len(dialogs)-1].(*tg.Dialog)
		if !ok {
			return scopes, nil
		}
		peer, err := a.inputPeerForDialog(last.Peer)
		if err != nil {
			// Cannot build the next offset peer; stop with what we have.
			return scopes, nil
		}
		offsetPeer = peer
		offsetID = last.TopMessage
		offsetDate = topMessageDate(messages, last.Peer, last.TopMessage)
	}
}

// SelfMembership probes the service account's own role in the scope.
func (a *RosterAdapter) SelfMembership(ctx context.Context, scopeID int64) (*domain.MembershipInfo, error) {
	channel, err := a.inputChannel(scopeID)
	if err != nil {
		return nil, err
	}
	res, err := a.api.ChannelsGetParticipant(ctx, &tg.ChannelsGetParticipantRequest{
		Channel:     channel,
		Participant: &tg.InputPeerSelf{},
	})
	if err != nil {
		return nil, fmt.Errorf("channels.getParticipant(self): %w", err)
	}
	return a.membershipFromResponse(res, 0), nil
}

// GetMembership looks up one participant by id in the scope.
func (a *RosterAdapter) GetMembership(ctx context.Context, scopeID, targetID int64) (*domain.MembershipInfo, error) {
	channel, err := a.inputChannel(scopeID)
	if err != nil {
		return nil, err
	}
	participant, err := a.inputPeerForID(targetID)
	if err != nil {
		return nil, err
	}
	res, err := a.api.ChannelsGetParticipant(ctx, &tg.ChannelsGetParticipantRequest{
		Channel:     channel,
		Participant: participant,
	})
	if err != nil {
		return nil, fmt.Errorf("channels.getParticipant: %w", err)
	}
	return a.membershipFromResponse(res, targetID), nil
}

// IterMembers walks the scope's recent members, calling fn per entry up to
// limit. The walk is page-by-page and not restartable mid-scan.
func (a *RosterAdapter) IterMembers(ctx context.Context, scopeID int64, limit int, fn func(domain.Identity) error) error {
	channel, err := a.inputChannel(scopeID)
	if err != nil {
		return err
	}

	seen := 0
	for offset := 0; seen < limit; {
		pageSize := memberPageSize
		if remaining := limit - seen; remaining < pageSize {
			pageSize = remaining
		}
		res, err := a.api.ChannelsGetParticipants(ctx, &tg.ChannelsGetParticipantsRequest{
			Channel: channel,
			Filter:  &tg.ChannelParticipantsRecent{},
			Offset:  offset,
			Limit:   pageSize,
		})
		if err != nil {
			return fmt.Errorf("channels.getParticipants: %w", err)
		}
		page, ok := res.(*tg.ChannelsChannelParticipants)
		if !ok {
			return nil // not modified; nothing further to scan
		}
		if len(page.Participants) == 0 {
			return nil
		}
		for _, u := range page.Users {
			user, ok := u.(*tg.User)
			if !ok {
				continue
			}
			a.rememberUser(user)
			if err := fn(userIdentity(user)); err != nil {
				if errors.Is(err, domain.ErrStopIteration) {
					return nil
				}
				return err
			}
			seen++
			if seen >= limit {
				return nil
			}
		}
		offset += len(page.Participants)
	}
	return nil
}

// ChangeRights applies a banned-rights change to the referenced participant.
func (a *RosterAdapter) ChangeRights(ctx context.Context, scopeID int64, ref domain.PeerRef, rights domain.MemberRights) error {
	channel, err := a.inputChannel(scopeID)
	if err != nil {
		return err
	}
	peer, err := a.inputPeerForRef(ref)
	if err != nil {
		return err
	}
	_, err = a.api.ChannelsEditBanned(ctx, &tg.ChannelsEditBannedRequest{
		Channel:      channel,
		Participant:  peer,
		BannedRights: bannedRights(rights),
	})
	if err != nil {
		return fmt.Errorf("channels.editBanned: %w", err)
	}
	return nil
}

// PurgeHistory removes the referenced participant's messages from the scope.
func (a *RosterAdapter) PurgeHistory(ctx context.Context, scopeID int64, ref domain.PeerRef) error {
	channel, err := a.inputChannel(scopeID)
	if err != nil {
		return err
	}
	peer, err := a.inputPeerForRef(ref)
	if err != nil {
		return err
	}
	_, err = a.api.ChannelsDeleteParticipantHistory(ctx, &tg.ChannelsDeleteParticipantHistoryRequest{
		Channel:     channel,
		Participant: peer,
	})
	if err != nil {
		return fmt.Errorf("channels.deleteParticipantHistory: %w", err)
	}
	return nil
}

// ResolveHandle resolves "@username" through the directory, or a numeric id
// the session has already seen an access hash for. A bare numeric id with no
// known hash fails with errPeerUnknown, which sends the caller to the racing
// resolver.
func (a *RosterAdapter) ResolveHandle(ctx context.Context, handleOrID string) (domain.Identity, error) {
	if strings.HasPrefix(handleOrID, "@") {
		res, err := a.api.ContactsResolveUsername(ctx, strings.TrimPrefix(handleOrID, "@"))
		if err != nil {
			return domain.Identity{}, fmt.Errorf("contacts.resolveUsername: %w", err)
		}
		for _, u := range res.Users {
			if user, ok := u.(*tg.User); ok {
				a.rememberUser(user)
				return userIdentity(user), nil
			}
		}
		for _, c := range res.Chats {
			if ch, ok := c.(*tg.Channel); ok {
				a.rememberChannel(ch)
				return channelIdentity(ch), nil
			}
		}
		return domain.Identity{}, fmt.Errorf("resolved username %s carries no usable peer", handleOrID)
	}

	id, err := strconv.ParseInt(handleOrID, 10, 64)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %s", errPeerUnknown, handleOrID)
	}

	a.mu.Lock()
	userHash, haveUser := a.userHashes[id]
	a.mu.Unlock()
	if !haveUser {
		return domain.Identity{}, fmt.Errorf("%w: %d", errPeerUnknown, id)
	}
	users, err := a.api.UsersGetUsers(ctx, []tg.InputUserClass{
		&tg.InputUser{UserID: id, AccessHash: userHash},
	})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("users.getUsers: %w", err)
	}
	for _, u := range users {
		if user, ok := u.(*tg.User); ok && user.ID == id {
			a.rememberUser(user)
			return userIdentity(user), nil
		}
	}
	return domain.Identity{}, fmt.Errorf("%w: %d", errPeerUnknown, id)
}

// membershipFromResponse converts a getParticipant response, picking out the
// target identity when the response enumerates it and the underlying channel
// id when the participant is a broadcast persona.
func (a *RosterAdapter) membershipFromResponse(res *tg.ChannelsChannelParticipant, targetID int64) *domain.MembershipInfo {
	info := &domain.MembershipInfo{}

	switch p := res.Participant.(type) {
	case *tg.ChannelParticipantCreator:
		info.CanRestrict = true
	case *tg.ChannelParticipantAdmin:
		info.CanRestrict = p.AdminRights.BanUsers
	case *tg.ChannelParticipantBanned:
		if peer, ok := p.Peer.(*tg.PeerChannel); ok {
			info.ChannelPeerID = peer.ChannelID
		}
	case *tg.ChannelParticipantLeft:
		if peer, ok := p.Peer.(*tg.PeerChannel); ok {
			info.ChannelPeerID = peer.ChannelID
		}
	}

	for _, u := range res.Users {
		user, ok := u.(*tg.User)
		if !ok {
			continue
		}
		a.rememberUser(user)
		if targetID != 0 && user.ID == targetID {
			ident := userIdentity(user)
			info.Identity = &ident
		}
	}
	for _, c := range res.Chats {
		if ch, ok := c.(*tg.Channel); ok {
			a.rememberChannel(ch)
			if targetID != 0 && ch.ID == targetID {
				ident := channelIdentity(ch)
				info.Identity = &ident
				info.ChannelPeerID = ch.ID
			}
		}
	}
	return info
}

// inputPeerForDialog builds the offset peer for dialog pagination from a
// dialog's peer, using the hashes remembered from the same response.
func (a *RosterAdapter) inputPeerForDialog(peer tg.PeerClass) (tg.InputPeerClass, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch p := peer.(type) {
	case *tg.PeerChannel:
		hash, ok := a.channelHashes[p.ChannelID]
		if !ok {
			return nil, fmt.Errorf("%w: channel %d", errPeerUnknown, p.ChannelID)
		}
		return &tg.InputPeerChannel{ChannelID: p.ChannelID, AccessHash: hash}, nil
	case *tg.PeerUser:
		hash, ok := a.userHashes[p.UserID]
		if !ok {
			return nil, fmt.Errorf("%w: user %d", errPeerUnknown, p.UserID)
		}
		return &tg.InputPeerUser{UserID: p.UserID, AccessHash: hash}, nil
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: p.ChatID}, nil
	}
	return nil, errPeerUnknown
}

// topMessageDate finds the date of the dialog's top message in the page's
// message list. Zero when absent; the remote side accepts a zero offset date.
func topMessageDate(messages []tg.MessageClass, peer tg.PeerClass, id int) int {
	for _, m := range messages {
		switch msg := m.(type) {
		case *tg.Message:
			if msg.ID == id && samePeer(msg.PeerID, peer) {
				return msg.Date
			}
		case *tg.MessageService:
			if msg.ID == id && samePeer(msg.PeerID, peer) {
				return msg.Date
			}
		}
	}
	return 0
}

func samePeer(a, b tg.PeerClass) bool {
	switch x := a.(type) {
	case *tg.PeerUser:
		y, ok := b.(*tg.PeerUser)
		return ok && x.UserID == y.UserID
	case *tg.PeerChat:
		y, ok := b.(*tg.PeerChat)
		return ok && x.ChatID == y.ChatID
	case *tg.PeerChannel:
		y, ok := b.(*tg.PeerChannel)
		return ok && x.ChannelID == y.ChannelID
	}
	return false
}

func (a *RosterAdapter) inputChannel(scopeID int64) (*tg.InputChannel, error) {
	a.mu.Lock()
	hash, ok := a.channelHashes[scopeID]
	a.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: channel %d", errPeerUnknown, scopeID)
	}
	return &tg.InputChannel{ChannelID: scopeID, AccessHash: hash}, nil
}

// inputPeerForID builds a peer reference from a bare id, falling back to a
// zero access hash when the session has not seen the peer. The remote side
// accepts that for participants it can identify itself; when it cannot, the
// caller's fallback chain moves on.
func (a *RosterAdapter) inputPeerForID(id int64) (tg.InputPeerClass, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id < 0 {
		cid := -id
		return &tg.InputPeerChannel{ChannelID: cid, AccessHash: a.channelHashes[cid]}, nil
	}
	if hash, ok := a.channelHashes[id]; ok {
		return &tg.InputPeerChannel{ChannelID: id, AccessHash: hash}, nil
	}
	return &tg.InputPeerUser{UserID: id, AccessHash: a.userHashes[id]}, nil
}

func (a *RosterAdapter) inputPeerForRef(ref domain.PeerRef) (tg.InputPeerClass, error) {
	switch ref.Kind {
	case domain.PeerRefIdentity, domain.PeerRefRaw:
		if ref.Identity == nil {
			return nil, fmt.Errorf("%w: ref %s has no identity", errPeerUnknown, ref)
		}
		if ref.Identity.Broadcast {
			return &tg.InputPeerChannel{ChannelID: ref.Identity.ID, AccessHash: ref.Identity.AccessHash}, nil
		}
		return &tg.InputPeerUser{UserID: ref.Identity.ID, AccessHash: ref.Identity.AccessHash}, nil
	case domain.PeerRefChannel:
		a.mu.Lock()
		hash := a.channelHashes[ref.ID]
		a.mu.Unlock()
		return &tg.InputPeerChannel{ChannelID: ref.ID, AccessHash: hash}, nil
	default:
		return a.inputPeerForID(ref.ID)
	}
}

func (a *RosterAdapter) rememberChannel(ch *tg.Channel) {
	a.mu.Lock()
	a.channelHashes[ch.ID] = ch.AccessHash
	a.mu.Unlock()
}

func (a *RosterAdapter) rememberUser(u *tg.User) {
	a.mu.Lock()
	a.userHashes[u.ID] = u.AccessHash
	a.mu.Unlock()
}

func userIdentity(u *tg.User) domain.Identity {
	return domain.Identity{
		ID:         u.ID,
		AccessHash: u.AccessHash,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Username:   u.Username,
	}
}

func channelIdentity(ch *tg.Channel) domain.Identity {
	return domain.Identity{
		ID:         ch.ID,
		AccessHash: ch.AccessHash,
		Broadcast:  true,
		Title:      ch.Title,
		Username:   ch.Username,
	}
}

// bannedRights maps domain rights onto the wire form. UntilDate zero means
// the restriction does not expire.
func bannedRights(r domain.MemberRights) tg.ChatBannedRights {
	out := tg.ChatBannedRights{
		ViewMessages: r.ViewMessages,
		SendMessages: r.SendMessages,
		SendMedia:    r.SendMedia,
		SendStickers: r.SendStickers,
		SendGifs:     r.SendGIFs,
		SendGames:    r.SendGames,
		SendInline:   r.SendInline,
		EmbedLinks:   r.EmbedLinks,
	}
	if !r.UntilDate.IsZero() {
		out.UntilDate = int(r.UntilDate.Unix())
	}
	return out
}
