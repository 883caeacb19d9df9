package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbot "github.com/go-telegram/bot"
	"golang.org/x/sync/errgroup"

	"github.com/edgard/infobusbot/internal/database"
	"github.com/edgard/infobusbot/internal/infobus"
	"github.com/edgard/infobusbot/internal/text"
	"github.com/edgard/infobusbot/internal/timewindow"
)

// newCheckerTask creates the task that polls infobus.eu for every
// subscription and notifies users about changes and periodic reports.
func newCheckerTask(deps TaskDeps) ScheduledTaskFunc {
	c := &checker{deps: deps, log: deps.Logger.With("task", "checker")}
	return c.run
}

type checker struct {
	deps TaskDeps
	log  *slog.Logger
}

// run performs one pass over all subscriptions. Per-subscription failures
// are logged and do not stop the pass.
func (c *checker) run(ctx context.Context) error {
	startTime := time.Now()

	subs, err := c.deps.Store.ListAllSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list subscriptions: %w", err)
	}

	checks, err := c.metaInt(ctx, database.MetaChecksCount)
	if err != nil {
		return fmt.Errorf("failed to read checks count: %w", err)
	}
	checks++

	limit := c.deps.Config.Checker.Concurrency
	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)

	for _, sub := range subs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := c.check(ctx, sub); err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					c.log.WarnContext(ctx, "Subscription check timed out", "sub_id", sub.ID)
				} else {
					c.log.ErrorContext(ctx, "Subscription check failed", "sub_id", sub.ID, "error", err)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	now := strconv.FormatInt(c.deps.now().Unix(), 10)
	if err := c.deps.Store.SetMeta(ctx, database.MetaLastCheckTS, now); err != nil {
		return fmt.Errorf("failed to store last check time: %w", err)
	}
	if err := c.deps.Store.SetMeta(ctx, database.MetaChecksCount, strconv.FormatInt(checks, 10)); err != nil {
		return fmt.Errorf("failed to store checks count: %w", err)
	}

	c.log.DebugContext(ctx, "Check pass finished", "subscriptions", len(subs), "checks", checks, "duration", time.Since(startTime))
	return nil
}

func (c *checker) check(ctx context.Context, sub database.Subscription) error {
	resp, err := c.deps.Routes.GetRoutes(ctx, infobus.RouteQuery{
		CityFromID: sub.CityFromID,
		CityToID:   sub.CityToID,
		FromName:   sub.FromName,
		ToName:     sub.ToName,
		Date:       sub.DateStr,
	})
	if err != nil {
		return fmt.Errorf("failed to fetch routes: %w", err)
	}

	times := infobus.ExtractTimes(resp)
	matches := timewindow.Matches(times, sub.DepFromHHMM, sub.DepToHHMM)
	newHash := timewindow.HashInRange(times, sub.DepFromHHMM, sub.DepToHHMM)

	nowTS := c.deps.now().Unix()
	lastReport, err := c.metaInt(ctx, database.LastReportKey(sub.ID))
	if err != nil {
		return fmt.Errorf("failed to read last report time: %w", err)
	}

	periodic := len(matches) > 0 && nowTS-lastReport >= int64(c.deps.Config.Checker.ReportEverySec)
	changed := newHash != "" && newHash != sub.LastHash

	if !(changed || periodic) || len(matches) == 0 {
		return nil
	}

	msg := c.formatUpdate(sub, matches, changed)
	for _, chunk := range text.Split(msg, text.MaxMessageLength) {
		if _, err := c.deps.Sender.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: sub.UserID, Text: chunk}); err != nil {
			return fmt.Errorf("failed to send update: %w", err)
		}
	}

	if newHash != "" {
		exists, err := c.deps.Store.UpdateLastHash(ctx, sub.ID, newHash)
		if err != nil {
			return err
		}
		if !exists {
			c.log.InfoContext(ctx, "Subscription removed during check", "sub_id", sub.ID)
			return nil
		}
	}
	if err := c.deps.Store.SetMeta(ctx, database.LastReportKey(sub.ID), strconv.FormatInt(nowTS, 10)); err != nil {
		return err
	}

	c.log.InfoContext(ctx, "Sent subscription update",
		"sub_id", sub.ID, "user_id", sub.UserID, "changed", changed, "matches", len(matches))
	return nil
}

func (c *checker) formatUpdate(sub database.Subscription, matches []infobus.Departure, changed bool) string {
	msgs := c.deps.Config.Messages
	header := msgs.PeriodicHeader
	if changed {
		header = msgs.UpdateHeader
	}

	lines := []string{
		fmt.Sprintf("%s по подписке #%d:", header, sub.ID),
		sub.Route(),
		"диапазон отправления " + sub.Window(),
		"",
	}
	for _, m := range matches {
		lines = append(lines, fmt.Sprintf("• %s → %s  (€%s, ⭐ %s)", m.Depart, m.Arrive, m.Price, m.Rating))
	}
	return strings.Join(lines, "\n")
}

// metaInt reads an integer meta value. Missing or malformed values count as 0;
// only a failed read is an error.
func (c *checker) metaInt(ctx context.Context, key string) (int64, error) {
	v, ok, err := c.deps.Store.GetMeta(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		c.log.WarnContext(ctx, "Ignoring malformed meta value", "key", key, "value", v)
		return 0, nil
	}
	return n, nil
}
