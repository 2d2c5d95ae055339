// Package bot is the Telegram front end: it parses commands and callbacks,
// calls the pipeline and replies in the subscriber's language.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/FranksOps/sift/internal/pipeline"
	"github.com/FranksOps/sift/internal/render"
	"github.com/FranksOps/sift/internal/source"
	"github.com/FranksOps/sift/internal/storage"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxCallbackData is Telegram's limit on inline button payloads, in bytes.
const maxCallbackData = 64

const (
	prefixLang    = "lang:"
	prefixSources = "sources:"
	prefixCopy    = "copy:"
)

// Sender is the part of *tgbotapi.BotAPI used to talk to chats.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// UpdateSource delivers incoming updates. *tgbotapi.BotAPI satisfies it.
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Finder is the pipeline surface the bot needs. *pipeline.Pipeline satisfies it.
type Finder interface {
	Find(ctx context.Context, query string, sources []source.Source) (pipeline.Outcome, error)
	AllLinks(ctx context.Context, query string, sources []source.Source) []string
	Cached(ctx context.Context, query string) (string, bool, error)
	Conclusion(ctx context.Context, query string) (string, bool, error)
}

// Prober checks that a site answers before it is added. *scraper.Fetcher
// satisfies it.
type Prober interface {
	Reachable(ctx context.Context, rawURL string) error
}

// Bot handles updates. It is safe for concurrent use.
type Bot struct {
	sender   Sender
	store    storage.Store
	registry *source.Registry
	finder   Finder
	prober   Prober
	logger   *slog.Logger
}

// New creates a Bot.
func New(sender Sender, store storage.Store, registry *source.Registry, finder Finder, prober Prober, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		sender:   sender,
		store:    store,
		registry: registry,
		finder:   finder,
		prober:   prober,
		logger:   logger,
	}
}

// Run long-polls updates until ctx is done, handling each in its own
// goroutine, and waits for in-flight handlers before returning.
func (b *Bot) Run(ctx context.Context, src UpdateSource) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := src.GetUpdatesChan(u)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			src.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.HandleUpdate(ctx, update)
			}()
		}
	}
}

// HandleUpdate dispatches a single update.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("update handler panicked", "update_id", update.UpdateID, "panic", r)
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	}
}

func userID(m *tgbotapi.Message) int64 {
	if m.From != nil {
		return m.From.ID
	}
	return m.Chat.ID
}

func (b *Bot) handleCommand(ctx context.Context, m *tgbotapi.Message) {
	uid := userID(m)
	lang := b.lang(ctx, uid)
	args := strings.TrimSpace(m.CommandArguments())
	log := b.logger.With("user_id", uid, "command", m.Command())
	log.Debug("command received")

	switch m.Command() {
	case "start", "help":
		b.reply(m, text(lang, msgWelcome), false, languageKeyboard())
	case "find":
		b.find(ctx, m, lang, args)
	case "addsite":
		b.addSite(ctx, m, lang, args)
	case "removesite":
		if args == "" {
			b.reply(m, text(lang, msgRemoveUsage), false, nil)
			return
		}
		_, err := b.store.Sites(ctx, uid, source.DefaultSiteURLs())
		if err == nil {
			err = b.store.RemoveSite(ctx, uid, args)
		}
		switch {
		case errors.Is(err, storage.ErrNotFound):
			b.reply(m, text(lang, msgSiteNotFound, args), false, nil)
		case err != nil:
			log.Error("remove site failed", "err", err)
			b.reply(m, text(lang, msgFailed), false, nil)
		default:
			b.reply(m, text(lang, msgSiteRemoved, args), false, nil)
		}
	case "resetsites":
		if err := b.store.ResetSites(ctx, uid, source.DefaultSiteURLs()); err != nil {
			log.Error("reset sites failed", "err", err)
			b.reply(m, text(lang, msgFailed), false, nil)
			return
		}
		b.reply(m, text(lang, msgSitesReset), false, nil)
	case "sites":
		sites, err := b.store.Sites(ctx, uid, source.DefaultSiteURLs())
		if err != nil {
			log.Error("list sites failed", "err", err)
			b.reply(m, text(lang, msgFailed), false, nil)
			return
		}
		b.reply(m, text(lang, msgSites, strings.Join(sites, "\n")), false, nil)
	case "subscribe":
		if args == "" {
			b.reply(m, text(lang, msgSubUsage), false, nil)
			return
		}
		if err := b.store.AddSubscription(ctx, uid, args); err != nil {
			log.Error("subscribe failed", "err", err)
			b.reply(m, text(lang, msgFailed), false, nil)
			return
		}
		b.reply(m, text(lang, msgSubscribed, args), false, nil)
	case "unsubscribe":
		if args == "" {
			b.reply(m, text(lang, msgUnsubUsage), false, nil)
			return
		}
		err := b.store.RemoveSubscription(ctx, uid, args)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			b.reply(m, text(lang, msgNotSubscribed, args), false, nil)
		case err != nil:
			log.Error("unsubscribe failed", "err", err)
			b.reply(m, text(lang, msgFailed), false, nil)
		default:
			b.reply(m, text(lang, msgUnsubscribed, args), false, nil)
		}
	case "subscriptions":
		subs, err := b.store.Subscriptions(ctx, uid)
		if err != nil {
			log.Error("list subscriptions failed", "err", err)
			b.reply(m, text(lang, msgFailed), false, nil)
			return
		}
		if len(subs) == 0 {
			b.reply(m, text(lang, msgNoSubs), false, nil)
			return
		}
		b.reply(m, text(lang, msgSubs, strings.Join(subs, "\n")), false, nil)
	default:
		b.reply(m, text(lang, msgUnknown), false, nil)
	}
}

func (b *Bot) find(ctx context.Context, m *tgbotapi.Message, lang, query string) {
	uid := userID(m)
	log := b.logger.With("user_id", uid, "query", query)
	if query == "" {
		b.reply(m, text(lang, msgFindUsage), false, nil)
		return
	}

	if cached, ok, err := b.finder.Cached(ctx, query); err != nil {
		log.Error("cache lookup failed", "err", err)
	} else if ok {
		if kb := resultKeyboard(lang, query); kb != nil {
			b.reply(m, cached, true, *kb)
		} else {
			b.reply(m, cached, true, nil)
		}
		return
	}

	pending, err := b.reply(m, text(lang, msgSearching), false, nil)
	if err != nil {
		return
	}

	sources, err := b.registry.ForUser(ctx, b.store, uid)
	if err != nil {
		log.Error("resolve sources failed", "err", err)
		b.edit(m.Chat.ID, pending.MessageID, text(lang, msgFailed), false, nil)
		return
	}

	out, err := b.finder.Find(ctx, query, sources)
	if err != nil {
		log.Error("find failed", "err", err)
		b.edit(m.Chat.ID, pending.MessageID, text(lang, msgFailed), false, nil)
		return
	}

	switch out.Status {
	case pipeline.StatusNoLinks:
		b.edit(m.Chat.ID, pending.MessageID, text(lang, msgNoLinks), false, nil)
	case pipeline.StatusNoContent:
		b.edit(m.Chat.ID, pending.MessageID, text(lang, msgNoContent), false, nil)
	default:
		if out.Degraded {
			log.Info("served extractive summary after AI failure")
		}
		b.edit(m.Chat.ID, pending.MessageID, out.Text, true, resultKeyboard(lang, query))
	}
}

func (b *Bot) addSite(ctx context.Context, m *tgbotapi.Message, lang, siteURL string) {
	uid := userID(m)
	if siteURL == "" {
		b.reply(m, text(lang, msgAddUsage), false, nil)
		return
	}
	if err := source.ValidateURL(siteURL); err != nil {
		b.reply(m, text(lang, msgInvalidURL), false, nil)
		return
	}
	if err := b.prober.Reachable(ctx, siteURL); err != nil {
		b.logger.Info("site unreachable", "user_id", uid, "url", siteURL, "err", err)
		b.reply(m, text(lang, msgUnreachable, siteURL, err), false, nil)
		return
	}
	if _, err := b.store.Sites(ctx, uid, source.DefaultSiteURLs()); err != nil {
		b.logger.Error("load sites failed", "user_id", uid, "err", err)
		b.reply(m, text(lang, msgFailed), false, nil)
		return
	}
	if err := b.store.AddSite(ctx, uid, siteURL); err != nil {
		b.logger.Error("add site failed", "user_id", uid, "url", siteURL, "err", err)
		b.reply(m, text(lang, msgFailed), false, nil)
		return
	}
	b.reply(m, text(lang, msgSiteAdded, siteURL), false, nil)
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	defer func() {
		if _, err := b.sender.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			b.logger.Debug("answer callback failed", "err", err)
		}
	}()

	if cq.Message == nil || cq.From == nil {
		return
	}
	uid := cq.From.ID
	m := cq.Message

	switch {
	case strings.HasPrefix(cq.Data, prefixLang):
		lang := strings.TrimPrefix(cq.Data, prefixLang)
		if !supported(lang) {
			return
		}
		if err := b.store.SetLanguage(ctx, uid, lang); err != nil {
			b.logger.Error("set language failed", "user_id", uid, "err", err)
			b.reply(m, text(lang, msgFailed), false, nil)
			return
		}
		b.reply(m, text(lang, msgLangSet), false, nil)

	case strings.HasPrefix(cq.Data, prefixSources):
		lang := b.lang(ctx, uid)
		query := strings.TrimPrefix(cq.Data, prefixSources)
		sources, err := b.registry.ForUser(ctx, b.store, uid)
		if err != nil {
			b.logger.Error("resolve sources failed", "user_id", uid, "err", err)
			b.reply(m, text(lang, msgFailed), false, nil)
			return
		}
		links := b.finder.AllLinks(ctx, query, sources)
		if len(links) == 0 {
			b.reply(m, text(lang, msgNoSources), false, nil)
			return
		}
		body, err := render.SourcesText(links)
		if err != nil {
			b.logger.Error("render sources failed", "err", err)
			return
		}
		b.reply(m, body, true, nil)

	case strings.HasPrefix(cq.Data, prefixCopy):
		lang := b.lang(ctx, uid)
		query := strings.TrimPrefix(cq.Data, prefixCopy)
		conclusion, ok, err := b.finder.Conclusion(ctx, query)
		if err != nil {
			b.logger.Error("conclusion lookup failed", "user_id", uid, "err", err)
		}
		if !ok {
			b.reply(m, text(lang, msgExpired), false, nil)
			return
		}
		b.reply(m, render.Copied(text(lang, msgCopied), conclusion), true, nil)
	}
}

// Notify sends fresh subscription links to a subscriber's private chat.
func (b *Bot) Notify(ctx context.Context, userID int64, query string, links []string) error {
	lang := b.lang(ctx, userID)
	body, err := render.NotificationText(render.Notification{
		Header: text(lang, msgNewResults),
		Query:  query,
		Links:  links,
	})
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(userID, body)
	if _, err := b.send(msg); err != nil {
		return fmt.Errorf("bot: notify %d: %w", userID, err)
	}
	return nil
}

func (b *Bot) lang(ctx context.Context, uid int64) string {
	lang, err := b.store.Language(ctx, uid)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			b.logger.Warn("language lookup failed", "user_id", uid, "err", err)
		}
		return langEN
	}
	return lang
}

func (b *Bot) reply(m *tgbotapi.Message, body string, markdown bool, markup any) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(m.Chat.ID, body)
	msg.ReplyToMessageID = m.MessageID
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if !markdown {
		sent, err := b.sender.Send(msg)
		if err != nil {
			b.logger.Warn("send failed", "chat_id", m.Chat.ID, "err", err)
		}
		return sent, err
	}
	return b.send(msg)
}

// send posts msg as Markdown and retries once as plain text if Telegram
// rejects the markup.
func (b *Bot) send(msg tgbotapi.MessageConfig) (tgbotapi.Message, error) {
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true
	sent, err := b.sender.Send(msg)
	if err == nil {
		return sent, nil
	}
	b.logger.Debug("markdown send failed, retrying as plain text", "chat_id", msg.ChatID, "err", err)
	msg.ParseMode = ""
	sent, err = b.sender.Send(msg)
	if err != nil {
		b.logger.Warn("send failed", "chat_id", msg.ChatID, "err", err)
	}
	return sent, err
}

func (b *Bot) edit(chatID int64, messageID int, body string, markdown bool, markup *tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, body)
	edit.ReplyMarkup = markup
	edit.DisableWebPagePreview = true
	if markdown {
		edit.ParseMode = tgbotapi.ModeMarkdown
		if _, err := b.sender.Send(edit); err == nil {
			return
		}
		edit.ParseMode = ""
	}
	if _, err := b.sender.Send(edit); err != nil {
		b.logger.Warn("edit failed", "chat_id", chatID, "err", err)
	}
}

func languageKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("English", prefixLang+langEN),
		tgbotapi.NewInlineKeyboardButtonData("Українська", prefixLang+langUK),
	))
}

// resultKeyboard returns nil when the query does not fit in callback data.
func resultKeyboard(lang, query string) *tgbotapi.InlineKeyboardMarkup {
	sources, copyData := prefixSources+query, prefixCopy+query
	if len(sources) > maxCallbackData || len(copyData) > maxCallbackData {
		return nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(text(lang, msgShowSources), sources)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(text(lang, msgCopyConclusion), copyData)),
	)
	return &kb
}
