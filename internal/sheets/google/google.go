package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	applog "penny/internal/log"
	ports "penny/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Client exports budget and goal rows to two sheets of one spreadsheet.
// Rows are keyed by their first column.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	budgetSheet   string
	goalsSheet    string
	logger        *applog.Logger

	// serializes read-then-write row placement
	mu sync.Mutex
}

var _ ports.Exporter = (*Client)(nil)

var errNoService = errors.New("sheets service not initialized")

type Options struct {
	SpreadsheetID   string
	BudgetSheet     string // default "Budgets"
	GoalsSheet      string // default "Goals"
	CredentialsFile string
	Logger          *applog.Logger
}

// New authenticates with a service account and returns a client.
func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	c := NewWithService(nil, opts)

	creds, source, err := loadCredentials(opts.CredentialsFile)
	if err != nil {
		return nil, err
	}
	c.svc, err = gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	c.logger.InfoContext(ctx, "Sheets client ready", "credentials", source, "spreadsheet_id", c.spreadsheetID)
	return c, nil
}

// NewWithService wraps an existing service.
func NewWithService(svc *gsheet.Service, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Client{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(opts.SpreadsheetID),
		budgetSheet:   orDefault(opts.BudgetSheet, "Budgets"),
		goalsSheet:    orDefault(opts.GoalsSheet, "Goals"),
		logger:        logger.WithComponent(applog.ComponentSheets),
	}
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

// loadCredentials looks at GOOGLE_SERVICE_ACCOUNT_JSON, then file, then
// GOOGLE_APPLICATION_CREDENTIALS. source names the one used, never the secret.
func loadCredentials(file string) (creds []byte, source string, err error) {
	if inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); inline != "" {
		return []byte(inline), "inline", nil
	}
	path := strings.TrimSpace(file)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, "", errors.New("no service account credentials: set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_APPLICATION_CREDENTIALS")
	}
	creds, err = os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read credentials: %w", err)
	}
	return creds, path, nil
}

// UpsertBudget writes the user's budget row, replacing an earlier one.
func (c *Client) UpsertBudget(ctx context.Context, row ports.BudgetRow) (string, error) {
	if row.UserID == "" {
		return "", errors.New("budget row without user id")
	}
	return c.upsert(ctx, c.budgetSheet, budgetHeader, row.UserID, budgetValues(row))
}

// UpsertGoal writes the goal's row, replacing an earlier one.
func (c *Client) UpsertGoal(ctx context.Context, row ports.GoalRow) (string, error) {
	if row.GoalID == "" {
		return "", errors.New("goal row without goal id")
	}
	return c.upsert(ctx, c.goalsSheet, goalHeader, row.GoalID, goalValues(row))
}

// DeleteGoal clears the goal's row. Cleared rows are reused by later upserts.
func (c *Client) DeleteGoal(ctx context.Context, goalID string) error {
	if c.svc == nil {
		return errNoService
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	values, err := c.readKeys(ctx, c.goalsSheet)
	if err != nil {
		return err
	}
	match, _ := locateRow(values, goalID)
	if match == 0 {
		c.logger.DebugContext(ctx, "Goal has no row to clear", applog.FieldGoalID, goalID)
		return nil
	}

	rng := rowRange(c.goalsSheet, match, len(goalHeader))
	_, err = c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	return nil
}

func (c *Client) upsert(ctx context.Context, sheet string, header []string, key string, cells []any) (string, error) {
	if c.svc == nil {
		return "", errNoService
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	values, err := c.readKeys(ctx, sheet)
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		if err := c.writeRow(ctx, rowRange(sheet, 1, len(header)), headerValues(header)); err != nil {
			return "", fmt.Errorf("write header of %s: %w", sheet, err)
		}
	}

	match, free := locateRow(values, key)
	row := match
	if row == 0 {
		row = free
	}
	rng := rowRange(sheet, row, len(header))
	if err := c.writeRow(ctx, rng, cells); err != nil {
		return "", fmt.Errorf("write %s: %w", rng, err)
	}
	return rng, nil
}

// readKeys returns the key column of sheet, header included.
func (c *Client) readKeys(ctx context.Context, sheet string) ([][]any, error) {
	rng := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

func (c *Client) writeRow(ctx context.Context, rng string, cells []any) error {
	vr := &gsheet.ValueRange{Values: [][]any{cells}}
	// RAW keeps user text such as "=SUM(...)" from being evaluated
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}
