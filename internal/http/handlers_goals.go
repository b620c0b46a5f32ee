package http

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"penny/internal/core"
	applog "penny/internal/log"
	"penny/internal/session"
)

type goalView struct {
	ID       string
	Name     string
	Target   decimal.Decimal
	Saved    decimal.Decimal
	Months   int
	Monthly  decimal.Decimal
	Progress int
	History  []core.Contribution
	Analysis template.HTML

	// Editing switches the row to an inline form prefilled from Form.
	Editing bool
	Form    core.GoalForm
	Errors  map[string]string

	Assessed   bool
	Achievable bool
	Shortfall  decimal.Decimal
}

type goalsData struct {
	navData
	Goals       []goalView
	Form        core.GoalForm
	Errors      map[string]string
	HasBudget   bool
	Capacity    decimal.Decimal
	HasCapacity bool
	Today       string
}

// handleGoals lists the user's goals (GET) or creates one (POST).
func (s *Server) handleGoals(w http.ResponseWriter, r *http.Request, st *session.State) {
	if resp := RequireMethod(r, http.MethodGet, http.MethodPost); resp != nil {
		resp.Write(w)
		return
	}
	if r.Method == http.MethodGet {
		s.renderGoals(w, r, st, NewHTMXResponse(), nil)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	form := goalFormFrom(r)
	g, err := core.ParseGoalForm(form)
	if err != nil {
		s.renderGoals(w, r, st, NewHTMXResponse().Status(http.StatusUnprocessableEntity), func(d *goalsData) {
			d.Form = form
			d.Errors = fieldMessages(err)
		})
		return
	}
	g.UserID = st.UserID

	ctx, cancel := storeContext(r.Context())
	defer cancel()
	g, err = s.store.CreateGoal(ctx, g)
	if err != nil {
		s.logRequestError(r, "Create goal failed", err, applog.ComponentGoal, applog.OpCreate)
		InternalServerError("Your goal could not be saved. Please try again.").Write(w)
		return
	}
	s.goalChanged(r.Context(), applog.OpCreate, g)
	s.renderGoals(w, r, st, NewHTMXResponse().TriggerGoalsChanged(g.ID).TriggerSuccessNotification("Goal added"), nil)
}

// handleGoalEdit opens the inline edit form for one goal.
func (s *Server) handleGoalEdit(w http.ResponseWriter, r *http.Request, st *session.State) {
	if resp := RequireMethod(r, http.MethodGet, http.MethodPost); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	g, ok := s.loadGoal(w, r, st, formValue(r, "id"))
	if !ok {
		return
	}
	st.EditingGoalID = g.ID
	s.sessions.Save(w, st)
	s.renderGoals(w, r, st, NewHTMXResponse(), nil)
}

// handleGoalCancel closes the edit form without saving.
func (s *Server) handleGoalCancel(w http.ResponseWriter, r *http.Request, st *session.State) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	st.EditingGoalID = ""
	s.sessions.Save(w, st)
	s.renderGoals(w, r, st, NewHTMXResponse(), nil)
}

// handleGoalUpdate saves the edit form. Contributions are kept; a stale
// analysis is dropped because it described the old target.
func (s *Server) handleGoalUpdate(w http.ResponseWriter, r *http.Request, st *session.State) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	g, ok := s.loadGoal(w, r, st, formValue(r, "id"))
	if !ok {
		return
	}

	form := goalFormFrom(r)
	parsed, err := core.ParseGoalForm(form)
	if err != nil {
		st.EditingGoalID = g.ID
		s.sessions.Save(w, st)
		s.renderGoals(w, r, st, NewHTMXResponse().Status(http.StatusUnprocessableEntity), func(d *goalsData) {
			for i := range d.Goals {
				if d.Goals[i].ID == g.ID {
					d.Goals[i].Form = form
					d.Goals[i].Errors = fieldMessages(err)
				}
			}
		})
		return
	}

	if !parsed.TargetAmount.Equal(g.TargetAmount) || parsed.Months != g.Months {
		g.Analysis = ""
	}
	g.Name, g.TargetAmount, g.Months = parsed.Name, parsed.TargetAmount, parsed.Months

	ctx, cancel := storeContext(r.Context())
	defer cancel()
	g, err = s.store.UpdateGoal(ctx, g)
	if err != nil {
		s.logRequestError(r, "Update goal failed", err, applog.ComponentGoal, applog.OpUpdate)
		InternalServerError("Your goal could not be updated. Please try again.").Write(w)
		return
	}
	st.EditingGoalID = ""
	s.sessions.Save(w, st)
	s.goalChanged(r.Context(), applog.OpUpdate, g)
	s.renderGoals(w, r, st, NewHTMXResponse().TriggerGoalsChanged(g.ID).TriggerSuccessNotification("Goal updated"), nil)
}

// handleGoalDelete removes a goal. htmx sends DELETE parameters in the query
// string; a POST may carry the id as form data or JSON.
func (s *Server) handleGoalDelete(w http.ResponseWriter, r *http.Request, st *session.State) {
	if resp := RequireDeleteOrPOST(r); resp != nil {
		resp.Write(w)
		return
	}
	id := sanitizeInput(r.URL.Query().Get("id"))
	if id == "" {
		vals, err := readBodyValues(r)
		if err != nil {
			BadRequestError("The request could not be read.").Write(w)
			return
		}
		id = sanitizeInput(vals.Get("id"))
	}
	g, ok := s.loadGoal(w, r, st, id)
	if !ok {
		return
	}

	ctx, cancel := storeContext(r.Context())
	defer cancel()
	if err := s.store.DeleteGoal(ctx, st.UserID, g.ID); err != nil && !errors.Is(err, core.ErrNotFound) {
		s.logRequestError(r, "Delete goal failed", err, applog.ComponentGoal, applog.OpDelete)
		InternalServerError("Your goal could not be deleted. Please try again.").Write(w)
		return
	}
	if st.EditingGoalID == g.ID {
		st.EditingGoalID = ""
		s.sessions.Save(w, st)
	}
	s.goalChanged(r.Context(), applog.OpDelete, g)
	s.renderGoals(w, r, st, NewHTMXResponse().TriggerGoalsChanged(g.ID).TriggerSuccessNotification("Goal deleted"), nil)
}

// handleGoalContribute records a deposit towards a goal.
func (s *Server) handleGoalContribute(w http.ResponseWriter, r *http.Request, st *session.State) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	g, ok := s.loadGoal(w, r, st, formValue(r, "id"))
	if !ok {
		return
	}

	var errs core.ValidationErrors
	amount, err := core.ParsePositiveAmount(core.FieldSaveAmount, formValue(r, core.FieldSaveAmount))
	if fe, ok := err.(*core.FieldError); ok {
		errs = append(errs, fe)
	}
	date, err := ParseDateParam(r.Form, core.FieldSaveDate, time.Now())
	if fe, ok := err.(*core.FieldError); ok {
		errs = append(errs, fe)
	}
	if len(errs) > 0 {
		msgs := fieldMessages(errs)
		if fe := errs.Field(core.FieldSaveDate); fe != nil && fe.Err == core.ErrNotANumber {
			msgs[core.FieldSaveDate] = "Please pick a valid date."
		}
		s.renderGoals(w, r, st, NewHTMXResponse().Status(http.StatusUnprocessableEntity), func(d *goalsData) {
			for i := range d.Goals {
				if d.Goals[i].ID == g.ID {
					d.Goals[i].Errors = msgs
				}
			}
		})
		return
	}

	ctx, cancel := storeContext(r.Context())
	defer cancel()
	g, err = s.store.AddContribution(ctx, st.UserID, g.ID, core.Contribution{Date: date, Amount: amount})
	if err != nil {
		s.logRequestError(r, "Add contribution failed", err, applog.ComponentGoal, applog.OpContribute)
		InternalServerError("Your contribution could not be saved. Please try again.").Write(w)
		return
	}
	s.goalChanged(r.Context(), applog.OpContribute, g)
	s.renderGoals(w, r, st, NewHTMXResponse().TriggerGoalsChanged(g.ID).
		TriggerSuccessNotification("Saved "+formatMoney(amount)+" towards "+g.Name), nil)
}

// handleGoalAnalyze asks the assistant whether the goal fits the budget and
// stores the explanation on the goal. Fallback text is shown but not stored.
func (s *Server) handleGoalAnalyze(w http.ResponseWriter, r *http.Request, st *session.State) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	g, ok := s.loadGoal(w, r, st, formValue(r, "id"))
	if !ok {
		return
	}

	ctx, cancel := storeContext(r.Context())
	budget, _, err := s.store.GetBudget(ctx, st.UserID)
	cancel()
	if err != nil {
		s.logRequestError(r, "Load budget for analysis failed", err, applog.ComponentBudget, applog.OpRead)
		InternalServerError("Your budget could not be loaded. Please try again.").Write(w)
		return
	}

	analysis, err := s.assistant.AnalyzeGoal(r.Context(), st.Persona, g, budget)
	if err != nil {
		s.logRequestError(r, "Goal analysis rejected", err, applog.ComponentGoal, applog.OpAnalyze)
		UnprocessableEntityError("This goal cannot be analysed. Check its amount and months.").Write(w)
		return
	}

	b := NewHTMXResponse().TriggerGoalsChanged(g.ID)
	if analysis.Fallback {
		b.TriggerErrorNotification("Penny could not finish the analysis. Please try again later.")
		s.renderGoals(w, r, st, b, func(d *goalsData) {
			for i := range d.Goals {
				if d.Goals[i].ID == g.ID {
					d.Goals[i].Analysis = s.markdown.HTML(analysis.Text)
				}
			}
		})
		return
	}

	g.Analysis = analysis.Text
	ctx, cancel = storeContext(r.Context())
	defer cancel()
	g, err = s.store.UpdateGoal(ctx, g)
	if err != nil {
		s.logRequestError(r, "Store goal analysis failed", err, applog.ComponentGoal, applog.OpAnalyze)
		InternalServerError("The analysis could not be saved. Please try again.").Write(w)
		return
	}
	s.goalChanged(r.Context(), applog.OpAnalyze, g)
	s.renderGoals(w, r, st, b, nil)
}

func goalFormFrom(r *http.Request) core.GoalForm {
	return core.GoalForm{
		Name:   formValue(r, core.FieldGoalName),
		Amount: formValue(r, core.FieldGoalAmount),
		Months: formValue(r, core.FieldGoalMonths),
	}
}

// loadGoal fetches one of the user's goals or writes the error response.
func (s *Server) loadGoal(w http.ResponseWriter, r *http.Request, st *session.State, id string) (core.GoalRecord, bool) {
	if id == "" {
		BadRequestError("Which goal? The goal id is missing.").Write(w)
		return core.GoalRecord{}, false
	}
	ctx, cancel := storeContext(r.Context())
	defer cancel()
	g, err := s.store.GetGoal(ctx, st.UserID, id)
	switch {
	case errors.Is(err, core.ErrNotFound):
		NotFoundError("That goal no longer exists.").Write(w)
		return core.GoalRecord{}, false
	case err != nil:
		s.logRequestError(r, "Load goal failed", err, applog.ComponentGoal, applog.OpRead)
		InternalServerError("Your goal could not be loaded. Please try again.").Write(w)
		return core.GoalRecord{}, false
	}
	return g, true
}

func (s *Server) goalChanged(ctx context.Context, op string, g core.GoalRecord) {
	s.goalChanges.Add(1)
	s.events.LogGoalChanged(ctx, op, g.UserID, g.ID, g.Name, g.TargetAmount.StringFixed(2), g.Months)
}

// renderGoals loads the goal list and budget, lets adjust tweak the view and
// renders the goals page or its panel.
func (s *Server) renderGoals(w http.ResponseWriter, r *http.Request, st *session.State, b *HTMXResponseBuilder, adjust func(*goalsData)) {
	ctx, cancel := storeContext(r.Context())
	defer cancel()

	goals, err := s.store.ListGoals(ctx, st.UserID)
	if err != nil {
		s.logRequestError(r, "List goals failed", err, applog.ComponentGoal, applog.OpList)
		InternalServerError("Your goals could not be loaded. Please try again.").Write(w)
		return
	}
	budget, hasBudget, err := s.store.GetBudget(ctx, st.UserID)
	if err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Budget unavailable for goals page", applog.FieldError, err)
		hasBudget = false
	}

	data := goalsData{
		navData:   s.nav(r.Context(), st, "Goals", "goals"),
		HasBudget: hasBudget,
		Today:     time.Now().Format(dateLayout),
	}
	if hasBudget {
		data.Capacity, data.HasCapacity = core.MonthlySavingCapacity(budget)
	}
	for _, g := range goals {
		data.Goals = append(data.Goals, s.goalViewOf(g, budget, hasBudget, st.EditingGoalID == g.ID))
	}
	if adjust != nil {
		adjust(&data)
	}
	s.respond(w, r, b, "goals.html", "goals_panel", data)
}

func (s *Server) goalViewOf(g core.GoalRecord, budget core.BudgetRecord, hasBudget, editing bool) goalView {
	v := goalView{
		ID:      g.ID,
		Name:    g.Name,
		Target:  g.TargetAmount,
		Saved:   g.Saved(),
		Months:  g.Months,
		History: g.SavingsHistory,
		Editing: editing,
		Form: core.GoalForm{
			Name:   g.Name,
			Amount: g.TargetAmount.StringFixed(2),
			Months: strconv.Itoa(g.Months),
		},
	}
	if p, err := core.GoalProgress(g); err == nil {
		v.Progress = percent(p)
	}
	if m, err := core.GoalMonthlyRequirement(g); err == nil {
		v.Monthly = m
	}
	if g.Analysis != "" {
		v.Analysis = s.markdown.HTML(g.Analysis)
	}
	if hasBudget {
		if a, err := core.AssessGoal(g, budget); err == nil && a.HasCapacity {
			v.Assessed = true
			v.Achievable = a.Achievable
			v.Shortfall = a.Shortfall
		}
	}
	return v
}
