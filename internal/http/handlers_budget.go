package http

import (
	"net/http"

	"penny/internal/core"
	applog "penny/internal/log"
	"penny/internal/session"
)

type budgetData struct {
	navData
	Form    core.BudgetForm
	Errors  map[string]string
	Saved   bool
	HasData bool
	Summary core.BudgetSummary
	Record  core.BudgetRecord
}

// handleBudget shows (GET) or saves (POST) the user's monthly budget.
func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request, st *session.State) {
	if resp := RequireMethod(r, http.MethodGet, http.MethodPost); resp != nil {
		resp.Write(w)
		return
	}
	data := budgetData{navData: s.nav(r.Context(), st, "Budget", "budget")}

	if r.Method == http.MethodGet {
		ctx, cancel := storeContext(r.Context())
		defer cancel()
		rec, ok, err := s.store.GetBudget(ctx, st.UserID)
		if err != nil {
			s.logRequestError(r, "Load budget failed", err, applog.ComponentBudget, applog.OpRead)
			InternalServerError("Your budget could not be loaded. Please try again.").Write(w)
			return
		}
		if ok {
			data.fill(rec)
		}
		s.render(w, r, http.StatusOK, "budget.html", "budget_panel", data)
		return
	}

	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	data.Form = core.BudgetForm{
		Income:           formValue(r, core.FieldIncome),
		MonthlyBudget:    formValue(r, core.FieldMonthlyBudget),
		Rent:             formValue(r, core.FieldRent),
		Food:             formValue(r, core.FieldFood),
		Transport:        formValue(r, core.FieldTransport),
		OtherLiabilities: formValue(r, core.FieldOtherLiabilities),
		ExtraInfo:        formValue(r, core.FieldExtraInfo),
	}
	rec, err := core.ParseBudgetForm(data.Form)
	if err != nil {
		data.Errors = fieldMessages(err)
		s.render(w, r, http.StatusUnprocessableEntity, "budget.html", "budget_panel", data)
		return
	}

	ctx, cancel := storeContext(r.Context())
	defer cancel()
	saved, err := s.store.SaveBudget(ctx, st.UserID, rec)
	if err != nil {
		s.logRequestError(r, "Save budget failed", err, applog.ComponentBudget, applog.OpUpdate)
		InternalServerError("Your budget could not be saved. Please try again.").Write(w)
		return
	}
	s.invalidateGraphs(st.UserID)
	s.budgetSaves.Add(1)

	data.fill(saved)
	data.Saved = true
	s.events.LogBudgetSaved(r.Context(), st.UserID,
		data.Summary.TotalExpenses.StringFixed(2),
		data.Summary.RemainingBalance.StringFixed(2),
		data.Summary.OverBudget)

	b := NewHTMXResponse().TriggerBudgetSaved().TriggerSuccessNotification("Budget saved")
	s.respond(w, r, b, "budget.html", "budget_panel", data)
}

func (d *budgetData) fill(rec core.BudgetRecord) {
	d.Form = rec.Form()
	d.Record = rec
	d.HasData = !rec.IsEmpty()
	d.Summary = core.Summarize(rec)
}
