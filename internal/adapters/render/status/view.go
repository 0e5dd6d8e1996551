package status

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bnema/walletctl/internal/application"
	"github.com/bnema/walletctl/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

// Status is everything the status screen shows. Balances is nil when the
// wallet is not connected or the fetch failed.
type Status struct {
	View        application.SessionView
	Balances    *domain.BalanceSnapshot
	Requirement domain.CreditRequirement
}

type RenderOptions struct {
	Now        time.Time
	StaleAfter time.Duration
}

func renderView(status Status, opts RenderOptions, s styles) string {
	session := status.View.Session
	lines := []string{
		s.title.Render("Wallet Session"),
		s.header.Render("state: ") + stateLabel(session.State, s),
	}

	if status.View.Degraded {
		lines = append(lines, s.empty.Render("continuing without a wallet"))
	}

	switch session.State {
	case domain.StateConnected:
		lines = append(lines, s.section.Render(renderConnected(session, opts, s)))
	case domain.StateErrored:
		lines = append(lines, s.section.Render(renderError(session.LastError, s)))
	default:
		if status.View.Restored != nil {
			lines = append(lines, s.section.Render(renderRestored(*status.View.Restored, opts, s)))
		}
	}

	if status.Balances != nil {
		lines = append(lines, s.section.Render(renderBalances(*status.Balances, status.Requirement, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func stateLabel(state domain.ConnectionState, s styles) string {
	color, ok := s.stateColor[string(state)]
	if !ok {
		color = lipgloss.Color("221")
	}
	return lipgloss.NewStyle().Foreground(color).Render(string(state))
}

func renderConnected(session domain.WalletSession, opts RenderOptions, s styles) string {
	parts := []string{s.address.Render(session.Address)}
	if session.AdapterName != "" {
		parts = append(parts, s.detail.Render("adapter: "+session.AdapterName))
	}
	if !session.ConnectedAt.IsZero() {
		parts = append(parts, s.detail.Render("connected "+formatSince(session.ConnectedAt, opts.Now)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderError(record *domain.ErrorRecord, s styles) string {
	if record == nil {
		return s.warning.Render("error: unknown")
	}
	parts := []string{s.warning.Render(fmt.Sprintf("%s: %s", kindLabel(record.Kind), record.Message))}
	if record.Action != "" {
		parts = append(parts, s.detail.Render("next: ")+s.action.Render(record.Action))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// renderRestored shows the last known session. It is never presented as a
// live connection.
func renderRestored(record domain.SessionRecord, opts RenderOptions, s styles) string {
	title := record.Address
	if record.Name != "" {
		title = fmt.Sprintf("%s (%s)", record.Address, record.Name)
	}
	line := s.detail.Render("last session: ") + s.address.Render(title)

	meta := s.entryMeta.Render("not verified, last seen " + formatSince(record.Timestamp, opts.Now))
	if isStale(record.Timestamp, opts) {
		meta += " " + s.warning.Render("[stale]")
	}
	return lipgloss.JoinVertical(lipgloss.Left, line, meta)
}

func renderBalances(snapshot domain.BalanceSnapshot, req domain.CreditRequirement, opts RenderOptions, s styles) string {
	header := s.header.Render(fmt.Sprintf("balances: %d", len(snapshot.Entries)))
	if isStale(snapshot.FetchedAt, opts) {
		header += " " + s.warning.Render("[stale]")
	}
	if len(snapshot.Entries) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, header, s.empty.Render("No balances available."))
	}

	lines := []string{header}
	for _, entry := range snapshot.Entries {
		lines = append(lines, balanceLine(entry, s))
	}
	if req.ProgramID != "" {
		lines = append(lines, feeLine(snapshot, req, s))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func balanceLine(entry domain.BalanceEntry, s styles) string {
	name := entry.ProgramID
	if entry.Symbol != "" {
		name = fmt.Sprintf("%s (%s)", entry.ProgramID, entry.Symbol)
	}

	total := entry.PublicAmount + entry.PrivateAmount
	publicPercent := 0.0
	if total > 0 {
		publicPercent = float64(entry.PublicAmount) / float64(total) * 100
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.entryKey.Render(name+":"),
		" ",
		renderProgressBar(publicPercent, 24, s),
		" ",
		s.detail.Render(fmt.Sprintf("public %s", domain.FormatCredits(entry.PublicAmount))),
		" ",
		s.entryMeta.Render(fmt.Sprintf("private %s", domain.FormatCredits(entry.PrivateAmount))),
	)
}

func feeLine(snapshot domain.BalanceSnapshot, req domain.CreditRequirement, s styles) string {
	label := s.entryKey.Render(fmt.Sprintf("mint fee: %s %s", domain.FormatCredits(req.Fee), req.ProgramID))
	if !snapshot.Satisfies(req) {
		return label + " " + s.warning.Render("insufficient")
	}

	// Brighter the more fees the largest single amount could pay, up to ten.
	coverage := 10.0
	if entry, ok := snapshot.Entry(req.ProgramID); ok && req.Fee > 0 {
		coverage = float64(max(entry.PublicAmount, entry.PrivateAmount)) / float64(req.Fee)
	}
	return label + " " + lipgloss.NewStyle().Foreground(interpolateColor(coverage, 1, 10)).Render("covered")
}

func renderProgressBar(filledPercent float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	filled := int(math.Round(float64(width) * clampPercent(filledPercent) / 100.0))
	filled = max(0, min(filled, width))

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", width-filled)),
		s.barBracket.Render("]"),
	)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func isStale(at time.Time, opts RenderOptions) bool {
	if opts.Now.IsZero() || at.IsZero() || opts.StaleAfter <= 0 {
		return false
	}
	return opts.Now.Sub(at) > opts.StaleAfter
}

func formatSince(at, now time.Time) string {
	if at.IsZero() {
		return "at an unknown time"
	}
	if now.IsZero() {
		return "at " + at.Format(time.RFC3339)
	}

	elapsed := now.Sub(at)
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return plural(int(elapsed.Minutes()), "minute") + " ago"
	case elapsed < 24*time.Hour:
		return plural(int(elapsed.Hours()), "hour") + " ago"
	default:
		return fmt.Sprintf("%s ago (%s)", plural(int(elapsed.Hours()/24), "day"), at.Format("15:04 on 02 Jan"))
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func kindLabel(kind domain.ErrorKind) string {
	if kind == "" {
		return "error"
	}
	return strings.ReplaceAll(string(kind), "_", " ")
}

func interpolateColor(value, min, max float64) lipgloss.Color {
	if max == min {
		return lipgloss.Color("255")
	}

	normalized := (value - min) / (max - min)
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}

	// ANSI 256 greyscale ramp from 240 (faded) to 255 (bright).
	interpolated := 240.0 + 15.0*normalized
	return lipgloss.Color(fmt.Sprintf("%d", int(interpolated)))
}
