package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"

	cl "tycoon/internal/cli"
	"tycoon/internal/game"
	"tycoon/internal/sim"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

type salesPayload struct {
	Sales []game.Sale `json:"sales"`
}

type employeesPayload struct {
	Employees []game.Employee `json:"employees"`
}

type notificationsPayload struct {
	Notifications []game.Notification `json:"notifications"`
}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

// confirm asks the user to type word before a destructive action.
func confirm(word string) (bool, error) {
	text, err := promptRequired(fmt.Sprintf("Type %s to confirm", word))
	if err != nil {
		return false, err
	}
	return text == word, nil
}

func renderClock(c cl.Clock) {
	state := danger.Sprint("stopped")
	if c.Running {
		state = success.Sprint("running")
	}
	accent.Println("\n== GAME CLOCK ==")
	fmt.Printf("Now:    %s\n", c.CurrentTime.Format("2006-01-02 15:04"))
	fmt.Printf("Speed:  %s days/tick\n", c.SpeedDays)
	fmt.Printf("State:  %s\n\n", state)
}

func renderTick(out cl.TickResult) {
	if !out.Advanced {
		printWarn("Clock is stopped, nothing advanced.")
		return
	}
	printSuccess(fmt.Sprintf("Advanced %s -> %s, %d tasks enqueued.",
		out.From.Format("2006-01-02 15:04"), out.To.Format("2006-01-02 15:04"), out.Tasks))
	names := make([]string, 0, len(out.ByTask))
	for name := range out.ByTask {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-36s %4d\n", name, out.ByTask[name])
	}
}

func renderSummary(raw map[string]any) error {
	out, err := decodeInto[sim.Summary](raw)
	if err != nil {
		return err
	}
	c := out.Company
	accent.Printf("\n== COMPANY #%d ==\n", c.ID)
	fmt.Printf("Name:          %s\n", c.Name)
	fmt.Printf("Funds:         %s\n", colorizeMoney(c.Funds))
	fmt.Printf("Loan balance:  %s\n", formatMoney(out.LoanBalance))
	fmt.Printf("Research lvl:  %d\n", out.ResearchedLevels)
	fmt.Printf("Carbon:        %s\n", c.CarbonFootprint.StringFixed(2))
	fmt.Printf("Employees:     %d (+%d applicants)\n", out.Employees, out.Applicants)
	fmt.Printf("Machines:      %d\n", len(out.Machines))
	fmt.Printf("Open orders:   %d purchases, %d sales\n", out.OpenPurchases, out.OpenSales)
	fmt.Printf("Unread notes:  %d\n", out.UnreadNotes)

	if len(out.Stock) > 0 {
		accent.Println("\nStock")
		fmt.Printf("%-8s %14s\n", "PRODUCT", "AVAILABLE")
		for _, p := range out.Stock {
			fmt.Printf("%-8d %14s\n", p.ProductID, p.AvailableStock.StringFixed(2))
		}
	}
	if len(out.Machines) > 0 {
		accent.Println("\nMachines")
		fmt.Printf("%-6s %-8s %-14s %11s %14s\n", "ID", "MODEL", "STATUS", "RELIABILITY", "VALUE")
		for _, m := range out.Machines {
			fmt.Printf("%-6d %-8d %-14s %10.1f%% %14s\n", m.ID, m.MachineID, m.Status, m.Reliability*100, formatMoney(m.Value))
		}
	}
	if len(out.RecentLedger) > 0 {
		accent.Println("\nRecent ledger")
		for _, t := range out.RecentLedger {
			fmt.Printf("%-16s %-24s %s\n", t.At.Format("2006-01-02 15:04"), truncate(t.Kind, 24), colorizeMoney(t.Amount))
		}
	}
	fmt.Println()
	return nil
}

func renderSales(raw map[string]any) error {
	out, err := decodeInto[salesPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== SALES ==")
	if len(out.Sales) == 0 {
		printInfo("No sales.")
		return nil
	}
	fmt.Printf("%-6s %-8s %-7s %10s %12s %-10s %-16s\n", "ID", "PRODUCT", "WILAYA", "QTY", "PRICE", "STATUS", "EXPIRES")
	for _, s := range out.Sales {
		fmt.Printf("%-6d %-8d %-7d %10s %12s %-10s %-16s\n",
			s.ID, s.ProductID, s.WilayaID,
			s.Quantity.StringFixed(2),
			formatMoney(s.SalePrice),
			s.Status,
			s.ExpiresAt().Format("2006-01-02 15:04"),
		)
	}
	fmt.Println()
	return nil
}

func renderEmployees(raw map[string]any) error {
	out, err := decodeInto[employeesPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== EMPLOYEES ==")
	if len(out.Employees) == 0 {
		printInfo("No employees or applicants.")
		return nil
	}
	fmt.Printf("%-6s %-20s %-12s %-9s %12s %6s %6s %-7s\n", "ID", "NAME", "PROFILE", "STATUS", "SALARY", "EFF", "MOOD", "MACHINE")
	for _, e := range out.Employees {
		machine := "-"
		if e.MachineID != 0 {
			machine = fmt.Sprint(e.MachineID)
		}
		fmt.Printf("%-6d %-20s %-12s %-9s %12s %6.2f %6.2f %-7s\n",
			e.ID,
			truncate(e.Name, 20),
			truncate(e.Profile, 12),
			e.Status,
			formatMoney(e.SalaryMonth),
			e.Efficiency,
			e.Mood,
			machine,
		)
	}
	fmt.Println()
	return nil
}

func renderNotifications(raw map[string]any) error {
	out, err := decodeInto[notificationsPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== NOTIFICATIONS ==")
	if len(out.Notifications) == 0 {
		printInfo("Nothing new.")
		return nil
	}
	for _, n := range out.Notifications {
		keys := make([]string, 0, len(n.Payload))
		for k := range n.Payload {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+n.Payload[k])
		}
		fmt.Printf("%-16s %-28s %s\n", n.CreatedAt.Format("2006-01-02 15:04"), n.Kind, strings.Join(parts, " "))
	}
	fmt.Println()
	return nil
}

func renderEvents(events []map[string]any) error {
	accent.Println("\n== WORLD EVENTS ==")
	if len(events) == 0 {
		printInfo("No events.")
		return nil
	}
	fmt.Printf("%-5s %-20s %8s %-8s %s\n", "ID", "KIND", "RATE", "ACTIVE", "SUMMARY")
	for _, raw := range events {
		ev, err := decodeInto[game.WorldEvent](raw)
		if err != nil {
			return err
		}
		active := neutral.Sprint("no")
		if ev.Active {
			active = success.Sprint("yes")
		}
		fmt.Printf("%-5d %-20s %8s %-8s %s\n", ev.ID, truncate(ev.Kind, 20), ev.Rate.String(), active, ev.Summary)
	}
	fmt.Println()
	return nil
}

// renderJSON prints payloads that have no dedicated view.
func renderJSON(raw any) error {
	body, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(body))
	return nil
}

func decodeInto[T any](in any) (T, error) {
	var out T
	raw, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func colorizeMoney(v decimal.Decimal) string {
	text := formatMoney(v)
	switch v.Sign() {
	case 1:
		return success.Sprint(text)
	case -1:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func formatMoney(v decimal.Decimal) string {
	sign := ""
	if v.IsNegative() {
		sign = "-"
		v = v.Neg()
	}
	whole := v.Truncate(0)
	frac := v.Sub(whole).Shift(2).Round(0).IntPart()
	if frac == 100 {
		whole = whole.Add(decimal.NewFromInt(1))
		frac = 0
	}
	return fmt.Sprintf("%s%s.%02d DA", sign, comma(whole.String()), frac)
}

func comma(s string) string {
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		b.WriteByte(',')
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
