package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"mjscore/internal/app"
	"mjscore/internal/domain"
	"mjscore/internal/report"

	"github.com/pterm/pterm"
)

const timeLayout = "2006-01-02 15:04"

func tableRows(sess *domain.Session) pterm.TableData {
	s := sess.State
	totals := sess.History.Totals()
	data := pterm.TableData{{"Seat", "ID", "Name", "Total", "Owed by", "Forfeit"}}
	for i, p := range s.Players {
		name := p.Name
		if p.ID == s.Dealer.ID {
			name += " (dealer)"
		}
		if p.ID == s.LastWinnerID {
			name += " *"
		}
		forfeit := ""
		if domain.CanForfeit(s, sess.Rules, p.ID) {
			forfeit = "yes"
		}
		data = append(data, []string{
			strconv.Itoa(i + 1),
			strconv.Itoa(p.ID),
			name,
			signed(totals[p.ID]),
			claimsText(s, p.Claims),
			forfeit,
		})
	}
	return data
}

func claimsText(s domain.State, claims map[int]int) string {
	ids := make([]int, 0, len(claims))
	for id, amount := range claims {
		if amount > 0 {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%s %d", s.NameOf(id), claims[id])
	}
	return strings.Join(parts, ", ")
}

func changesText(s domain.State, changes []domain.ScoreChange) string {
	parts := make([]string, 0, len(changes))
	for _, c := range changes {
		parts = append(parts, fmt.Sprintf("%s %s", s.NameOf(c.UserID), signed(c.Delta)))
	}
	return strings.Join(parts, ", ")
}

func signed(n int) string {
	if n > 0 {
		return "+" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// historyRows lists entries newest first, at most limit when limit > 0.
func historyRows(s domain.State, entries []domain.Entry, limit int) pterm.TableData {
	data := pterm.TableData{{"#", "When", "Event", "Changes"}}
	for i := len(entries) - 1; i >= 0; i-- {
		if limit > 0 && len(data) > limit {
			break
		}
		e := entries[i]
		data = append(data, []string{
			strconv.Itoa(i + 1),
			e.At.Local().Format(timeLayout),
			e.Description,
			changesText(s, e.Changes),
		})
	}
	return data
}

func standingsRows(stats []report.PlayerStats) pterm.TableData {
	data := pterm.TableData{{"Rank", "Name", "Total", "Wins", "Rounds", "Avg", "Max", "Min", "StdDev", "Win %"}}
	for i, st := range stats {
		data = append(data, []string{
			strconv.Itoa(i + 1),
			st.Name,
			signed(st.Total),
			strconv.Itoa(st.Wins),
			strconv.Itoa(st.Rounds),
			strconv.Itoa(st.Average),
			strconv.Itoa(st.Max),
			strconv.Itoa(st.Min),
			strconv.Itoa(st.StdDev),
			strconv.Itoa(st.WinPercent) + "%",
		})
	}
	return data
}

func payoutRows(payouts []report.Payout) pterm.TableData {
	data := pterm.TableData{{"Name", "Total", "Base", "Adjustment", "Final"}}
	for _, p := range payouts {
		data = append(data, []string{
			p.Name,
			signed(p.Total),
			fmt.Sprintf("%.2f", p.Base),
			fmt.Sprintf("%+.2f", p.Adjustment),
			fmt.Sprintf("%.2f", p.Final),
		})
	}
	return data
}

func breakdownRows(s domain.State, breakdown []domain.Breakdown) pterm.TableData {
	data := pterm.TableData{{"Winner", "From", "Fan", "Dealer", "La", "Prior", "Claim"}}
	for _, b := range breakdown {
		data = append(data, []string{
			s.NameOf(b.WinnerID),
			s.NameOf(b.OpponentID),
			strconv.Itoa(b.Base),
			strconv.Itoa(b.DealerBonus),
			strconv.Itoa(b.LaBonus),
			strconv.Itoa(b.Prior),
			strconv.Itoa(b.Final),
		})
	}
	return data
}

func noticeText(s domain.State, n *domain.ResetNotice) string {
	winners := make([]string, len(n.WinnerIDs))
	for i, id := range n.WinnerIDs {
		winners[i] = s.NameOf(id)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s takes over. These claims will be cleared:", strings.Join(winners, ", "))
	for _, c := range n.Cleared {
		fmt.Fprintf(&b, "\n  %s: %s", s.NameOf(c.PlayerID), claimsText(s, c.Claims))
	}
	return b.String()
}

func renderTable(data pterm.TableData) {
	if err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Render(); err != nil {
		pterm.Error.Println(err)
	}
}

func renderSession(sess *domain.Session) {
	renderTable(tableRows(sess))
	s := sess.State
	pop := "off"
	if sess.Rules.PopOnNewWinner {
		pop = "on"
	}
	pterm.Info.Printfln("Dealer %s, streak %d (bonus %d). Takeover reset %s. %d history entries.",
		s.NameOf(s.Dealer.ID), s.Dealer.Streak, s.Dealer.Bonus(), pop, sess.History.Len())
}

func renderPreview(s domain.State, res domain.Resolution) {
	if !res.Applied {
		pterm.Warning.Println("Nothing would happen: the event's precondition is not met.")
		return
	}
	pterm.DefaultBox.WithTitle("Preview").Println(res.Description + "\n" + changesText(s, res.Changes))
	if len(res.Breakdown) > 0 {
		renderTable(breakdownRows(s, res.Breakdown))
	}
	if res.Notice != nil {
		pterm.Warning.Println(noticeText(s, res.Notice))
	}
}

func renderEvents(s domain.State, events []app.Event) {
	if len(events) == 0 {
		pterm.Info.Println("Nothing changed.")
		return
	}
	for _, ev := range events {
		switch p := ev.Payload.(type) {
		case app.ResolvedPayload:
			pterm.Success.Printfln("%s: %s", p.Description, changesText(s, p.Changes))
		case app.TakeoverPayload:
			pterm.Warning.Println(noticeText(s, &p.Notice))
		case app.UndonePayload:
			pterm.Success.Printfln("Undid %s", p.Description)
		case app.DealerPayload:
			pterm.Success.Printfln("Dealer is %s, streak %d", s.NameOf(p.Dealer.ID), p.Dealer.Streak)
		case app.RulesPayload:
			pterm.Success.Printfln("Takeover reset: %t", p.Rules.PopOnNewWinner)
		case app.SeatingPayload:
			pterm.Success.Printfln("Seating updated")
		case app.RenamedPayload:
			pterm.Success.Printfln("Player %d is now %s", p.UserID, p.Name)
		default:
			if ev.Kind == app.EventSessionReset {
				pterm.Success.Println("Session reset")
			}
		}
	}
}
