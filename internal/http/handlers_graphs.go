package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"penny/internal/core"
	applog "penny/internal/log"
	"penny/internal/session"
)

type graphRow struct {
	Name   string
	Class  string
	Amount string
	Width  int
}

// graphView is the cached, user-independent part of the graphs page.
type graphView struct {
	HasBudget  bool
	OverBudget bool
	Income     string
	Expenses   string
	Rows       []graphRow
}

type graphsData struct {
	navData
	graphView
}

// handleGraphs shows the monthly breakdown as horizontal bars.
func (s *Server) handleGraphs(w http.ResponseWriter, r *http.Request, st *session.State) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}
	view, err := s.graphFor(r.Context(), st.UserID)
	if err != nil {
		s.logRequestError(r, "Load breakdown failed", err, applog.ComponentBudget, applog.OpRead)
		InternalServerError("Your breakdown could not be loaded. Please try again.").Write(w)
		return
	}
	s.render(w, r, http.StatusOK, "graphs.html", "", graphsData{
		navData:   s.nav(r.Context(), st, "Graphs", "graphs"),
		graphView: view,
	})
}

// graphFor returns the cached breakdown, building it at most once per user
// when several requests miss at the same time.
func (s *Server) graphFor(ctx context.Context, userID string) (graphView, error) {
	if v, ok := s.graphs.Get(userID); ok {
		return v, nil
	}

	v, err, _ := s.loads.Do(userID, func() (interface{}, error) {
		gen := s.graphGeneration(userID)
		ctx, cancel := storeContext(context.WithoutCancel(ctx))
		defer cancel()
		rec, ok, err := s.store.GetBudget(ctx, userID)
		if err != nil {
			return graphView{}, err
		}
		view := buildGraph(rec, ok)
		s.graphGenMu.Lock()
		if s.graphGen[userID] == gen {
			s.graphs.Set(userID, view)
		}
		s.graphGenMu.Unlock()
		return view, nil
	})
	if err != nil {
		return graphView{}, err
	}
	return v.(graphView), nil
}

// invalidateGraphs drops the cached breakdown after the budget changed. A
// load already running keeps its answer but does not cache it.
func (s *Server) invalidateGraphs(userID string) {
	s.graphGenMu.Lock()
	s.graphGen[userID]++
	s.graphs.Delete(userID)
	s.graphGenMu.Unlock()
	s.loads.Forget(userID)
}

func (s *Server) graphGeneration(userID string) uint64 {
	s.graphGenMu.Lock()
	defer s.graphGenMu.Unlock()
	return s.graphGen[userID]
}

func buildGraph(rec core.BudgetRecord, ok bool) graphView {
	if !ok || rec.IsEmpty() {
		return graphView{}
	}
	slices := core.Breakdown(rec)
	amounts := make([]decimal.Decimal, len(slices))
	for i, c := range slices {
		amounts[i] = c.Amount
	}
	widths := barWidths(amounts)

	view := graphView{
		HasBudget:  true,
		OverBudget: core.OverBudget(rec),
		Income:     formatAmount(rec.Income),
		Expenses:   formatMoney(core.TotalExpenses(rec)),
	}
	for i, c := range slices {
		view.Rows = append(view.Rows, graphRow{
			Name:   c.Name,
			Class:  strings.ToLower(strings.ReplaceAll(c.Name, " ", "-")),
			Amount: formatMoney(c.Amount),
			Width:  widths[i],
		})
	}
	return view
}
