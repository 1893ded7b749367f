// Package service applies parsed commands against the inventory, membership
// and audit stores and formats the text replies sent back to the sender.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"whatstock/internal/core/command"
	"whatstock/internal/core/domain"
	"whatstock/internal/port"
)

const (
	replyUnknown        = "❌ Unknown command. Send 'help' for available commands."
	replyEmptyInventory = "📦 Inventory is empty"
	replyGenericFailure = "⚠️ Something went wrong. Please try again."
	replyForbidden      = "🚫 You are not allowed to do that."
	replyMustJoin       = "🚫 You must join first. Send 'join'."

	helpText = `📋 Inventory Bot Commands:

🆕 Initialize inventory:
   apple=5, banana=12

➕ Add items:
   add apple=3

➖ Sell items:
   sell banana=5

📦 Show inventory:
   inventory

📜 Show recent activity:
   history

👥 Membership:
   join / leave

🔐 Admin:
   remove <item>, reset, broadcast <text>, kick <id>

❓ Show help:
   help`
)

// Options tunes guard policy and display limits.
type Options struct {
	// AdminIDs is the static allow-list of privileged phone ids.
	AdminIDs []string

	// RequireMembership gates inventory-mutating commands behind an
	// explicit join. When false, senders are auto-registered as members
	// on their first message.
	RequireMembership bool

	// HistoryLimit bounds the window shown by the history command.
	HistoryLimit int
}

// BotService is the command executor. It owns the guard policy; storage and
// delivery are behind the injected ports.
type BotService struct {
	inventory port.InventoryRepository
	members   port.MemberRepository
	audit     port.AuditRepository
	notifier  port.Notifier
	logger    *slog.Logger

	admins            map[string]bool
	requireMembership bool
	historyLimit      int

	now func() time.Time
}

func New(
	inventory port.InventoryRepository,
	members port.MemberRepository,
	audit port.AuditRepository,
	notifier port.Notifier,
	logger *slog.Logger,
	opts Options,
) *BotService {
	if logger == nil {
		logger = slog.Default()
	}
	admins := make(map[string]bool, len(opts.AdminIDs))
	for _, id := range opts.AdminIDs {
		admins[id] = true
	}
	limit := opts.HistoryLimit
	if limit <= 0 {
		limit = 10
	}
	return &BotService{
		inventory:         inventory,
		members:           members,
		audit:             audit,
		notifier:          notifier,
		logger:            logger,
		admins:            admins,
		requireMembership: opts.RequireMembership,
		historyLimit:      limit,
		now:               time.Now,
	}
}

// HandleMessage processes one inbound text message and returns the reply to
// send back. It never returns an error: storage failures are logged and
// surfaced to the sender as a generic failure message, so one bad message
// never takes the webhook down.
func (s *BotService) HandleMessage(ctx context.Context, senderID, displayName, text string) string {
	if err := s.trackSender(ctx, senderID, displayName); err != nil {
		s.logger.Error("member bookkeeping failed", "sender", senderID, "err", err)
	}

	cmd := command.Parse(text)
	reply, err := s.execute(ctx, cmd, senderID, displayName)
	if err != nil {
		s.logger.Error("command failed", "sender", senderID, "err", err)
		return replyGenericFailure
	}
	return reply
}

// ItemCount reports the number of distinct tracked items (health endpoint).
func (s *BotService) ItemCount(ctx context.Context) (int, error) {
	entries, err := s.inventory.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// trackSender keeps the membership table in sync with inbound traffic: known
// members get their message counter bumped, and in the ungated mode unknown
// senders are registered on first contact.
func (s *BotService) trackSender(ctx context.Context, senderID, displayName string) error {
	member, err := s.members.Get(ctx, senderID)
	if err != nil {
		return err
	}
	if member != nil {
		return s.members.IncrementMessageCount(ctx, senderID)
	}
	if s.requireMembership {
		return nil
	}
	return s.members.Put(ctx, domain.Member{
		PhoneID:      senderID,
		DisplayName:  displayName,
		IsAdmin:      s.admins[senderID],
		JoinedAt:     s.now(),
		MessageCount: 1,
	})
}

func (s *BotService) execute(ctx context.Context, cmd command.Command, senderID, displayName string) (string, error) {
	switch cmd.Kind {
	case command.Help:
		return helpText, nil
	case command.ShowInventory:
		return s.showInventory(ctx)
	case command.History:
		return s.showHistory(ctx)
	case command.Initialize:
		return s.initialize(ctx, cmd.Pairs, senderID, displayName)
	case command.Add:
		return s.add(ctx, cmd.Pairs, senderID, displayName)
	case command.Sell:
		return s.sell(ctx, cmd.Pairs, senderID, displayName)
	case command.Join:
		return s.join(ctx, senderID, displayName)
	case command.Leave:
		return s.leave(ctx, senderID, displayName)
	case command.Reset:
		return s.reset(ctx, senderID)
	case command.Remove:
		return s.remove(ctx, cmd.Arg, senderID)
	case command.Broadcast:
		return s.broadcast(ctx, cmd.Arg, senderID)
	case command.Kick:
		return s.kick(ctx, cmd.Arg, senderID)
	case command.Invalid:
		return fmt.Sprintf("❌ Invalid format. Use: %s", cmd.Usage), nil
	default:
		return replyUnknown, nil
	}
}

// checkMember enforces the gated-variant rule: inventory-mutating commands
// require membership when RequireMembership is on.
func (s *BotService) checkMember(ctx context.Context, senderID string) (bool, error) {
	if !s.requireMembership {
		return true, nil
	}
	member, err := s.members.Get(ctx, senderID)
	if err != nil {
		return false, err
	}
	return member != nil, nil
}

// checkAdmin enforces the privileged-command rule: the sender must be on the
// static admin allow-list and must also have joined.
func (s *BotService) checkAdmin(ctx context.Context, senderID string) (bool, error) {
	if !s.admins[senderID] {
		return false, nil
	}
	member, err := s.members.Get(ctx, senderID)
	if err != nil {
		return false, err
	}
	return member != nil, nil
}

func (s *BotService) showInventory(ctx context.Context) (string, error) {
	entries, err := s.inventory.List(ctx)
	if err != nil {
		return "", fmt.Errorf("list inventory: %w", err)
	}
	return formatInventory(entries), nil
}

func formatInventory(entries []domain.InventoryEntry) string {
	if len(entries) == 0 {
		return replyEmptyInventory
	}
	lines := []string{"📦 Current Inventory:", strings.Repeat("=", 20)}
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s: %d", e.Item, e.Quantity))
	}
	return strings.Join(lines, "\n")
}

func (s *BotService) showHistory(ctx context.Context) (string, error) {
	records, err := s.audit.Recent(ctx, s.historyLimit)
	if err != nil {
		return "", fmt.Errorf("read audit log: %w", err)
	}
	if len(records) == 0 {
		return "📜 No history yet.", nil
	}

	lines := []string{"📜 Recent activity:"}
	for _, rec := range records {
		line := fmt.Sprintf("- [%s] %s %s", rec.Timestamp.Format("Jan _2 15:04"), rec.ActorID, rec.Action)
		if rec.Item != "" {
			line += fmt.Sprintf(" %s=%d", rec.Item, rec.Quantity)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

func (s *BotService) initialize(ctx context.Context, pairs []command.Pair, senderID, displayName string) (string, error) {
	ok, err := s.checkMember(ctx, senderID)
	if err != nil {
		return "", err
	}
	if !ok {
		return replyMustJoin, nil
	}

	for _, p := range pairs {
		if err := s.inventory.Set(ctx, p.Item, p.Quantity); err != nil {
			return "", fmt.Errorf("set %s: %w", p.Item, err)
		}
	}
	s.appendAudit(ctx, domain.AuditRecord{
		ActorID: senderID,
		Action:  domain.ActionInitialize,
	})

	listing, err := s.showInventory(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Inventory initialized by %s\n\n%s", displayName, listing), nil
}

func (s *BotService) add(ctx context.Context, pairs []command.Pair, senderID, displayName string) (string, error) {
	ok, err := s.checkMember(ctx, senderID)
	if err != nil {
		return "", err
	}
	if !ok {
		return replyMustJoin, nil
	}

	for _, p := range pairs {
		if _, err := s.inventory.Increment(ctx, p.Item, p.Quantity); err != nil {
			return "", fmt.Errorf("add %s: %w", p.Item, err)
		}
		s.appendAudit(ctx, domain.AuditRecord{
			ActorID:  senderID,
			Action:   domain.ActionAdd,
			Item:     p.Item,
			Quantity: p.Quantity,
		})
	}

	listing, err := s.showInventory(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Items added by %s\n\n%s", displayName, listing), nil
}

// sell is all-or-nothing: every pair is validated before any decrement so a
// failed pair leaves the whole inventory untouched.
func (s *BotService) sell(ctx context.Context, pairs []command.Pair, senderID, displayName string) (string, error) {
	ok, err := s.checkMember(ctx, senderID)
	if err != nil {
		return "", err
	}
	if !ok {
		return replyMustJoin, nil
	}

	for _, p := range pairs {
		available, err := s.inventory.Get(ctx, p.Item)
		if err != nil {
			return "", fmt.Errorf("check %s: %w", p.Item, err)
		}
		if available == 0 {
			return businessReply(&domain.ItemNotFoundError{Item: p.Item}), nil
		}
		if available < p.Quantity {
			return businessReply(&domain.InsufficientStockError{Item: p.Item, Available: available}), nil
		}
	}

	for _, p := range pairs {
		if _, err := s.inventory.Increment(ctx, p.Item, -p.Quantity); err != nil {
			var insufficient *domain.InsufficientStockError
			if errors.As(err, &insufficient) {
				// Lost a race between validation and apply.
				return businessReply(insufficient), nil
			}
			return "", fmt.Errorf("sell %s: %w", p.Item, err)
		}
		s.appendAudit(ctx, domain.AuditRecord{
			ActorID:  senderID,
			Action:   domain.ActionSell,
			Item:     p.Item,
			Quantity: p.Quantity,
		})
	}

	listing, err := s.showInventory(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Sale recorded by %s\n\n%s", displayName, listing), nil
}

func (s *BotService) join(ctx context.Context, senderID, displayName string) (string, error) {
	member, err := s.members.Get(ctx, senderID)
	if err != nil {
		return "", fmt.Errorf("check member: %w", err)
	}
	if member != nil {
		// Idempotent: no duplicate record, no duplicate audit entry.
		return "👋 You are already a member.", nil
	}

	err = s.members.Put(ctx, domain.Member{
		PhoneID:     senderID,
		DisplayName: displayName,
		IsAdmin:     s.admins[senderID],
		JoinedAt:    s.now(),
	})
	if err != nil {
		return "", fmt.Errorf("register member: %w", err)
	}
	s.appendAudit(ctx, domain.AuditRecord{ActorID: senderID, Action: domain.ActionJoin})
	return fmt.Sprintf("✅ Welcome, %s! You joined the group.", displayName), nil
}

func (s *BotService) leave(ctx context.Context, senderID, displayName string) (string, error) {
	member, err := s.members.Get(ctx, senderID)
	if err != nil {
		return "", fmt.Errorf("check member: %w", err)
	}
	if member == nil {
		return "❌ You are not a member.", nil
	}

	if err := s.members.Remove(ctx, senderID); err != nil {
		return "", fmt.Errorf("remove member: %w", err)
	}
	s.appendAudit(ctx, domain.AuditRecord{ActorID: senderID, Action: domain.ActionLeave})
	return fmt.Sprintf("👋 Goodbye, %s. You left the group.", displayName), nil
}

func (s *BotService) reset(ctx context.Context, senderID string) (string, error) {
	ok, err := s.checkAdmin(ctx, senderID)
	if err != nil {
		return "", err
	}
	if !ok {
		return replyForbidden, nil
	}

	if err := s.inventory.Reset(ctx); err != nil {
		return "", fmt.Errorf("reset inventory: %w", err)
	}
	s.appendAudit(ctx, domain.AuditRecord{ActorID: senderID, Action: domain.ActionReset})
	return "🗑️ Inventory cleared.", nil
}

func (s *BotService) remove(ctx context.Context, item, senderID string) (string, error) {
	ok, err := s.checkAdmin(ctx, senderID)
	if err != nil {
		return "", err
	}
	if !ok {
		return replyForbidden, nil
	}

	qty, err := s.inventory.Get(ctx, item)
	if err != nil {
		return "", fmt.Errorf("check %s: %w", item, err)
	}
	if qty == 0 {
		return businessReply(&domain.ItemNotFoundError{Item: item}), nil
	}

	if err := s.inventory.Delete(ctx, item); err != nil {
		return "", fmt.Errorf("delete %s: %w", item, err)
	}
	s.appendAudit(ctx, domain.AuditRecord{
		ActorID:  senderID,
		Action:   domain.ActionRemove,
		Item:     item,
		Quantity: qty,
	})
	return fmt.Sprintf("🗑️ Removed %s from inventory.", item), nil
}

// broadcast fans a message out to every member except the sender. Delivery
// failures are logged and skipped; the reply reports how many sends landed.
func (s *BotService) broadcast(ctx context.Context, text, senderID string) (string, error) {
	ok, err := s.checkAdmin(ctx, senderID)
	if err != nil {
		return "", err
	}
	if !ok {
		return replyForbidden, nil
	}

	members, err := s.members.List(ctx)
	if err != nil {
		return "", fmt.Errorf("list members: %w", err)
	}

	delivered, total := 0, 0
	for _, member := range members {
		if member.PhoneID == senderID {
			continue
		}
		total++
		if err := s.notifier.Send(ctx, member.PhoneID, text); err != nil {
			s.logger.Error("broadcast delivery failed", "recipient", member.PhoneID, "err", err)
			continue
		}
		delivered++
	}

	s.appendAudit(ctx, domain.AuditRecord{ActorID: senderID, Action: domain.ActionBroadcast})
	return fmt.Sprintf("📢 Broadcast delivered to %d of %d members.", delivered, total), nil
}

func (s *BotService) kick(ctx context.Context, targetID, senderID string) (string, error) {
	ok, err := s.checkAdmin(ctx, senderID)
	if err != nil {
		return "", err
	}
	if !ok {
		return replyForbidden, nil
	}

	member, err := s.members.Get(ctx, targetID)
	if err != nil {
		return "", fmt.Errorf("check member: %w", err)
	}
	if member == nil {
		return fmt.Sprintf("❌ %s is not a member.", targetID), nil
	}

	if err := s.members.Remove(ctx, targetID); err != nil {
		return "", fmt.Errorf("remove member: %w", err)
	}
	s.appendAudit(ctx, domain.AuditRecord{ActorID: senderID, Action: domain.ActionLeave})
	return fmt.Sprintf("👢 %s was removed from the group.", member.DisplayName), nil
}

// businessReply maps a business-rule violation onto the reply texture the
// sender sees. Storage failures never come through here.
func businessReply(err error) string {
	var notFound *domain.ItemNotFoundError
	var insufficient *domain.InsufficientStockError
	switch {
	case errors.As(err, &notFound):
		return fmt.Sprintf("❌ %s not found in inventory", notFound.Item)
	case errors.As(err, &insufficient):
		return fmt.Sprintf("❌ Not enough %s. Available: %d", insufficient.Item, insufficient.Available)
	}
	return replyGenericFailure
}

// appendAudit is best-effort: a failed append is logged but never fails the
// command that already mutated state.
func (s *BotService) appendAudit(ctx context.Context, rec domain.AuditRecord) {
	rec.ID = uuid.NewString()
	rec.Timestamp = s.now()
	if err := s.audit.Append(ctx, rec); err != nil {
		s.logger.Error("audit append failed", "action", rec.Action, "err", err)
	}
}
