package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"finsight/internal/core"
	"finsight/internal/hooks"
	"finsight/internal/kv"
	"finsight/internal/log"
)

var errUsage = errors.New("invalid usage")

const usage = `finsight - personal finance from the terminal

Usage:
  finsight signup [--name NAME] <email>
  finsight login <email>
  finsight logout

  finsight tx list
  finsight tx add --amount 12.50 [--type expense|income] [--date YYYY-MM-DD] [--desc TEXT] [--category NAME]
  finsight tx rm <id>

  finsight goals list
  finsight goals add --name NAME --target 500 [--current 0] [--deadline YYYY-MM-DD]
  finsight goals fund [--withdraw] <id> <amount>
  finsight goals status <id> <in_progress|reached|missed>
  finsight goals rm <id>

  finsight profile show
  finsight profile set [--name NAME] [--currency EUR] [--theme light|dark|system]
  finsight profile avatar <image-file>
  finsight profile avatar --remove

  finsight summary
  finsight export
  finsight insights [--refresh]
  finsight watch [--once]

Passwords are read from FINSIGHT_PASSWORD or prompted on stdin.
Ids may be abbreviated to any unique prefix.
`

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.errOut, usage)
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "signup":
		return a.signup(ctx, rest)
	case "login":
		return a.login(ctx, rest)
	case "logout":
		return a.logout(ctx)
	case "tx", "transactions":
		return a.transactions(ctx, rest)
	case "goals":
		return a.goals(ctx, rest)
	case "profile":
		return a.profile(ctx, rest)
	case "summary":
		return a.summary(ctx)
	case "export":
		return a.export(ctx)
	case "insights":
		return a.insights(ctx, rest)
	case "watch":
		return a.watch(ctx, rest)
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

func subcommand(args []string) (string, []string) {
	if len(args) == 0 {
		return "list", nil
	}
	return args[0], args[1:]
}

func (a *app) signup(ctx context.Context, args []string) error {
	fs := a.flags("signup")
	name := fs.String("name", "", "full name")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: signup [--name NAME] <email>", errUsage)
	}
	pw, err := a.password()
	if err != nil {
		return err
	}
	sess, err := a.api.SignUp(ctx, fs.Arg(0), pw, *name)
	if err != nil {
		return err
	}
	if err := a.sessions.Save(ctx, sess); err != nil {
		return err
	}
	fmt.Fprintln(a.out, successStyle.Render("Signed up as "+sess.User.Email))
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: login <email>", errUsage)
	}
	pw, err := a.password()
	if err != nil {
		return err
	}
	sess, err := a.api.SignIn(ctx, args[0], pw)
	if err != nil {
		return err
	}
	if err := a.sessions.Save(ctx, sess); err != nil {
		return err
	}
	fmt.Fprintln(a.out, successStyle.Render("Signed in as "+sess.User.Email))
	return nil
}

// logout forgets the session and the insight cache of the previous user.
func (a *app) logout(ctx context.Context) error {
	if err := a.sessions.Clear(ctx); err != nil {
		return err
	}
	if err := hooks.NewInsights(a.api, a.store).Clear(ctx); err != nil && !errors.Is(err, kv.ErrNotFound) {
		return err
	}
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

func (a *app) startTransactions(ctx context.Context) (*hooks.Transactions, core.User, error) {
	u, err := a.user(ctx)
	if err != nil {
		return nil, core.User{}, err
	}
	h := hooks.NewTransactions(a.api, a.hookOptions(nil))
	_ = h.Start(ctx, u)
	if err := a.fetchFailure(); err != nil {
		h.Stop()
		return nil, core.User{}, err
	}
	return h, u, nil
}

func (a *app) transactions(ctx context.Context, args []string) error {
	sub, rest := subcommand(args)
	h, u, err := a.startTransactions(ctx)
	if err != nil {
		return err
	}
	defer h.Stop()

	switch sub {
	case "list", "ls":
		fmt.Fprintln(a.out, renderTransactions(h.State().Items.Transactions, a.currency(ctx, u)))
		return nil

	case "add":
		fs := a.flags("tx add")
		amount := fs.String("amount", "", "amount in major units, e.g. 12.50")
		typ := fs.String("type", string(core.Expense), "income or expense")
		date := fs.String("date", "", "date (YYYY-MM-DD), default today")
		desc := fs.String("desc", "", "description")
		category := fs.String("category", "", "category name")
		if err := fs.Parse(rest); err != nil {
			return errUsage
		}
		in, err := transactionInput(*amount, *typ, *date, *desc, time.Now())
		if err != nil {
			return err
		}
		if *category != "" {
			c, err := findCategory(h.State().Items.Categories, *category, in.Type)
			if err != nil {
				return err
			}
			in.CategoryID = &c.ID
		}
		if err := h.Create(ctx, in); err != nil {
			return err
		}
		fmt.Fprintln(a.out, successStyle.Render(fmt.Sprintf("Added %s of %s", in.Type, in.Amount.Format(a.currency(ctx, u)))))
		return nil

	case "rm", "delete":
		if len(rest) != 1 {
			return fmt.Errorf("%w: tx rm <id>", errUsage)
		}
		ids := make([]uuid.UUID, 0, len(h.State().Items.Transactions))
		for _, tx := range h.State().Items.Transactions {
			ids = append(ids, tx.ID)
		}
		id, err := resolveID(rest[0], ids)
		if err != nil {
			return err
		}
		if err := h.Delete(ctx, id); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Deleted transaction "+shortID(id))
		return nil
	}
	return fmt.Errorf("%w: unknown tx command %q", errUsage, sub)
}

func transactionInput(amount, typ, date, desc string, now time.Time) (core.TransactionInput, error) {
	m, err := core.ParseAmount(amount)
	if err != nil {
		return core.TransactionInput{}, err
	}
	in := core.TransactionInput{
		Amount:      m,
		Type:        core.TransactionType(strings.ToLower(strings.TrimSpace(typ))),
		Description: strings.TrimSpace(desc),
		Date:        core.DateOf(now),
	}
	if date != "" {
		if in.Date, err = core.ParseDate(date); err != nil {
			return core.TransactionInput{}, err
		}
	}
	return in, in.Validate()
}

// findCategory matches name case-insensitively, preferring a category of
// the transaction's type.
func findCategory(cats []core.Category, name string, typ core.TransactionType) (core.Category, error) {
	var fallback *core.Category
	for i, c := range cats {
		if !strings.EqualFold(c.Name, strings.TrimSpace(name)) {
			continue
		}
		if c.Type == typ {
			return c, nil
		}
		if fallback == nil {
			fallback = &cats[i]
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return core.Category{}, fmt.Errorf("category %q: %w", name, core.ErrNotFound)
}

func (a *app) goals(ctx context.Context, args []string) error {
	sub, rest := subcommand(args)
	u, err := a.user(ctx)
	if err != nil {
		return err
	}
	h := hooks.NewGoals(a.api, a.hookOptions(nil))
	_ = h.Start(ctx, u)
	defer h.Stop()
	if err := a.fetchFailure(); err != nil {
		return err
	}

	ids := func() []uuid.UUID {
		out := make([]uuid.UUID, 0, len(h.State().Items))
		for _, g := range h.State().Items {
			out = append(out, g.ID)
		}
		return out
	}

	switch sub {
	case "list", "ls":
		fmt.Fprintln(a.out, renderGoals(h.State().Items, h.Totals(), a.currency(ctx, u)))
		return nil

	case "add":
		fs := a.flags("goals add")
		name := fs.String("name", "", "goal name")
		target := fs.String("target", "", "target amount")
		current := fs.String("current", "", "amount already saved")
		deadline := fs.String("deadline", "", "deadline (YYYY-MM-DD)")
		icon := fs.String("icon", "", "icon name")
		color := fs.String("color", "", "color")
		if err := fs.Parse(rest); err != nil {
			return errUsage
		}
		in, err := goalInput(*name, *target, *current, *deadline)
		if err != nil {
			return err
		}
		in.Icon, in.Color = *icon, *color
		if err := h.Create(ctx, in); err != nil {
			return err
		}
		fmt.Fprintln(a.out, successStyle.Render("Created goal "+in.Name))
		return nil

	case "fund":
		fs := a.flags("goals fund")
		withdraw := fs.Bool("withdraw", false, "take money out of the goal")
		if err := fs.Parse(rest); err != nil {
			return errUsage
		}
		if fs.NArg() != 2 {
			return fmt.Errorf("%w: goals fund [--withdraw] <id> <amount>", errUsage)
		}
		id, err := resolveID(fs.Arg(0), ids())
		if err != nil {
			return err
		}
		delta, err := core.ParseAmount(fs.Arg(1))
		if err != nil {
			return err
		}
		if *withdraw {
			delta = core.Money{}.Sub(delta)
		}
		if err := h.AddFunds(ctx, id, delta); err != nil {
			return err
		}
		fmt.Fprintln(a.out, renderGoals(h.State().Items, h.Totals(), a.currency(ctx, u)))
		return nil

	case "status":
		if len(rest) != 2 {
			return fmt.Errorf("%w: goals status <id> <in_progress|reached|missed>", errUsage)
		}
		id, err := resolveID(rest[0], ids())
		if err != nil {
			return err
		}
		status := core.GoalStatus(strings.ToLower(rest[1]))
		if err := h.Update(ctx, id, core.GoalPatch{Status: &status}); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Goal "+shortID(id)+" is now "+string(status))
		return nil

	case "rm", "delete":
		if len(rest) != 1 {
			return fmt.Errorf("%w: goals rm <id>", errUsage)
		}
		id, err := resolveID(rest[0], ids())
		if err != nil {
			return err
		}
		if err := h.Delete(ctx, id); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Deleted goal "+shortID(id))
		return nil
	}
	return fmt.Errorf("%w: unknown goals command %q", errUsage, sub)
}

func goalInput(name, target, current, deadline string) (core.GoalInput, error) {
	in := core.GoalInput{Name: strings.TrimSpace(name)}
	var err error
	if in.TargetAmount, err = core.ParseAmount(target); err != nil {
		return core.GoalInput{}, err
	}
	if current != "" && current != "0" {
		if in.CurrentAmount, err = core.ParseAmount(current); err != nil {
			return core.GoalInput{}, err
		}
	}
	if deadline != "" {
		d, err := core.ParseDate(deadline)
		if err != nil {
			return core.GoalInput{}, err
		}
		in.Deadline = &d
	}
	return in, in.Validate()
}

func (a *app) profile(ctx context.Context, args []string) error {
	sub, rest := subcommand(args)
	if sub == "list" {
		sub = "show"
	}
	u, err := a.user(ctx)
	if err != nil {
		return err
	}
	h := hooks.NewProfile(a.api, a.api, a.hookOptions(nil))
	_ = h.Start(ctx, u)
	defer h.Stop()
	if err := a.fetchFailure(); err != nil {
		return err
	}

	switch sub {
	case "show":
		fmt.Fprintln(a.out, renderProfile(u, h.State().Items))
		return nil

	case "set":
		fs := a.flags("profile set")
		name := fs.String("name", "", "full name")
		currency := fs.String("currency", "", "ISO 4217 currency code")
		theme := fs.String("theme", "", "light, dark or system")
		if err := fs.Parse(rest); err != nil {
			return errUsage
		}
		var patch core.ProfilePatch
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "name":
				patch.FullName = name
			case "currency":
				c := strings.ToUpper(*currency)
				patch.Currency = &c
			case "theme":
				t := core.Theme(strings.ToLower(*theme))
				patch.Theme = &t
			}
		})
		if patch == (core.ProfilePatch{}) {
			return fmt.Errorf("%w: profile set needs at least one of --name, --currency, --theme", errUsage)
		}
		if err := h.Update(ctx, patch); err != nil {
			return err
		}
		fmt.Fprintln(a.out, renderProfile(u, h.State().Items))
		return nil

	case "avatar":
		fs := a.flags("profile avatar")
		remove := fs.Bool("remove", false, "remove the current avatar")
		if err := fs.Parse(rest); err != nil {
			return errUsage
		}
		if *remove {
			if err := h.RemoveAvatar(ctx); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Avatar removed")
			return nil
		}
		if fs.NArg() != 1 {
			return fmt.Errorf("%w: profile avatar <image-file>", errUsage)
		}
		url, err := a.uploadAvatar(ctx, h, fs.Arg(0))
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, successStyle.Render("Avatar uploaded: "+url))
		return nil
	}
	return fmt.Errorf("%w: unknown profile command %q", errUsage, sub)
}

func (a *app) uploadAvatar(ctx context.Context, h *hooks.Profile, file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return h.UploadAvatar(ctx, filepath.Base(file), http.DetectContentType(head[:n]), f)
}

func (a *app) summary(ctx context.Context) error {
	u, err := a.user(ctx)
	if err != nil {
		return err
	}
	sum, err := a.api.Summary(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, renderSummary(sum, a.currency(ctx, u)))
	return nil
}

// export appends the user's transactions to the server's spreadsheet.
func (a *app) export(ctx context.Context) error {
	if _, err := a.user(ctx); err != nil {
		return err
	}
	res, err := a.api.Export(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, successStyle.Render(fmt.Sprintf("Exported %d rows", res.Rows))+labelStyle.Render(" to "+res.Range))
	return nil
}

// insights shows the cached bundle when it is fresh, otherwise builds a
// snapshot from the user's data and asks the server for a new one.
func (a *app) insights(ctx context.Context, args []string) error {
	fs := a.flags("insights")
	refresh := fs.Bool("refresh", false, "ignore the local cache")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	u, err := a.user(ctx)
	if err != nil {
		return err
	}
	h := hooks.NewInsights(a.api, a.store)
	if !*refresh && h.Load(ctx) {
		fmt.Fprintln(a.out, renderInsights(*h.State().Insights, true))
		return nil
	}

	txs, err := a.api.ListTransactions(ctx, u.ID)
	if err != nil {
		return err
	}
	goals, err := a.api.ListGoals(ctx, u.ID)
	if err != nil {
		return err
	}
	if err := h.Fetch(ctx, core.NewSnapshot(txs, goals)); err != nil {
		return errors.New(h.State().Error)
	}
	fmt.Fprintln(a.out, renderInsights(*h.State().Insights, false))
	return nil
}

// watch renders a live dashboard that refreshes whenever the change feed
// reports a write for the user.
func (a *app) watch(ctx context.Context, args []string) error {
	fs := a.flags("watch")
	once := fs.Bool("once", false, "render once and exit")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	u, err := a.user(ctx)
	if err != nil {
		return err
	}
	currency := a.currency(ctx, u)

	var feed hooks.ChangeFeed
	if !*once {
		feed = a.api
		a.mu.Lock()
		a.live = true
		a.mu.Unlock()
	}
	txs := hooks.NewTransactions(a.api, a.hookOptions(feed))
	goals := hooks.NewGoals(a.api, a.hookOptions(feed))
	if err := txs.Start(ctx, u); err != nil {
		a.logger.Warn("Live updates unavailable for transactions", log.FieldError, err.Error())
	}
	defer txs.Stop()
	if err := goals.Start(ctx, u); err != nil {
		a.logger.Warn("Live updates unavailable for goals", log.FieldError, err.Error())
	}
	defer goals.Stop()

	marker := hooks.NewNotificationMarker(a.store)
	draw := func() {
		d := dashboard{
			User:     u,
			Currency: currency,
			Txs:      txs.State().Items.Transactions,
			Goals:    goals.State().Items,
			Loading:  txs.State().Loading || goals.State().Loading,
		}
		created := make([]time.Time, 0, len(d.Txs))
		for _, tx := range d.Txs {
			created = append(created, tx.CreatedAt)
		}
		d.Unread, _ = marker.Unread(ctx, created)
		if !*once {
			fmt.Fprint(a.out, "\x1b[H\x1b[2J")
		}
		fmt.Fprintln(a.out, renderDashboard(d))
	}

	draw()
	if *once {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			// leaving the dashboard counts as having seen everything on it
			if err := marker.MarkRead(context.WithoutCancel(ctx)); err != nil {
				a.logger.Warn("Failed to store notification read mark", log.FieldError, err.Error())
			}
			return nil
		case <-txs.Changes():
			draw()
		case <-goals.Changes():
			draw()
		}
	}
}

// resolveID accepts a full id or a unique prefix of one of ids.
func resolveID(arg string, ids []uuid.UUID) (uuid.UUID, error) {
	arg = strings.ToLower(strings.TrimSpace(arg))
	if id, err := uuid.Parse(arg); err == nil {
		return id, nil
	}
	if arg == "" {
		return uuid.Nil, fmt.Errorf("%w: empty id", core.ErrInvalidInput)
	}
	var match uuid.UUID
	n := 0
	for _, id := range ids {
		if strings.HasPrefix(id.String(), arg) {
			match = id
			n++
		}
	}
	switch n {
	case 0:
		return uuid.Nil, fmt.Errorf("id %q: %w", arg, core.ErrNotFound)
	case 1:
		return match, nil
	}
	return uuid.Nil, fmt.Errorf("%w: id prefix %q is ambiguous", core.ErrInvalidInput, arg)
}

func shortID(id uuid.UUID) string { return id.String()[:8] }
