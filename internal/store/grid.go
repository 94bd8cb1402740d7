package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/ridepool/internal/models"
)

const gridRowIDKey = "_id"

// GridStore talks to the remote row-grid service that backs rider
// sessions in production. The grid exposes search, rows/create and
// rows/update_by_rowIds actions under a per-grid URL, authenticated
// with an authId header.
type GridStore struct {
	BaseURL string
	AuthID  string
	GridID  string
	ViewID  string
	Client  *http.Client
}

func NewGridStore(baseURL, authID, gridID, viewID string) *GridStore {
	return &GridStore{
		BaseURL: baseURL,
		AuthID:  authID,
		GridID:  gridID,
		ViewID:  viewID,
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type gridColumnFilter struct {
	Column   string `json:"column"`
	Operator string `json:"operator,omitempty"`
	Keyword  any    `json:"keyword"`
}

type gridFilter struct {
	Filters             []gridColumnFilter `json:"filters"`
	FiltersJoinOperator string             `json:"filtersJoinOperator,omitempty"`
}

type gridPagination struct {
	StartRow int `json:"startRow"`
	RowCount int `json:"rowCount"`
}

type gridQueryBody struct {
	ColumnFilter              *gridFilter     `json:"columnFilter,omitempty"`
	Pagination                *gridPagination `json:"pagination,omitempty"`
	SendRowIdsInResponse      bool            `json:"sendRowIdsInResponse"`
	ShowColumnNamesInResponse bool            `json:"showColumnNamesInResponse"`
}

type gridSearchRequest struct {
	Query gridQueryBody `json:"query"`
}

type gridSearchResponse struct {
	Rows []map[string]any `json:"rows"`
}

type gridInsertRequest struct {
	Insert struct {
		Rows []map[string]any `json:"rows"`
	} `json:"insert"`
}

type gridInsertResponse struct {
	CreatedRows []string `json:"createdRows"`
}

type gridUpdateRequest struct {
	Update struct {
		Rows []gridUpdateRow `json:"rows"`
	} `json:"update"`
}

type gridUpdateRow struct {
	RowID   string         `json:"rowId"`
	Columns map[string]any `json:"columns"`
}

func (g *GridStore) Search(ctx context.Context, q Query) ([]models.RiderSession, error) {
	var req gridSearchRequest
	req.Query.SendRowIdsInResponse = true
	req.Query.ShowColumnNamesInResponse = true
	if len(q.Conditions) > 0 {
		f := &gridFilter{FiltersJoinOperator: "AND"}
		for _, c := range q.Conditions {
			f.Filters = append(f.Filters, gridColumnFilter{
				Column:   c.Column,
				Operator: gridOperator(c.Op),
				Keyword:  c.Value,
			})
		}
		req.Query.ColumnFilter = f
	}
	if q.RowCount > 0 {
		req.Query.Pagination = &gridPagination{StartRow: q.StartRow + 1, RowCount: q.RowCount}
	}

	var resp gridSearchResponse
	if err := g.do(ctx, http.MethodPost, g.actionURL("search"), req, &resp); err != nil {
		return nil, err
	}
	out := make([]models.RiderSession, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		out = append(out, rowToSession(asString(row[gridRowIDKey]), row))
	}
	return out, nil
}

func (g *GridStore) Insert(ctx context.Context, s *models.RiderSession) (string, error) {
	var req gridInsertRequest
	req.Insert.Rows = []map[string]any{sessionToRow(s)}

	var resp gridInsertResponse
	if err := g.do(ctx, http.MethodPost, g.actionURL("rows/create"), req, &resp); err != nil {
		return "", err
	}
	if len(resp.CreatedRows) == 0 {
		return "", fmt.Errorf("store: grid returned no created row id")
	}
	return resp.CreatedRows[0], nil
}

func (g *GridStore) Update(ctx context.Context, id string, columns map[string]any) error {
	var req gridUpdateRequest
	req.Update.Rows = []gridUpdateRow{{RowID: id, Columns: columns}}
	return g.do(ctx, http.MethodPut, g.actionURL("rows/update_by_rowIds"), req, nil)
}

func (g *GridStore) actionURL(action string) string {
	if g.ViewID != "" {
		return fmt.Sprintf("%s/grid/%s/share/%s/%s", g.BaseURL, g.GridID, g.ViewID, action)
	}
	return fmt.Sprintf("%s/grid/%s/%s", g.BaseURL, g.GridID, action)
}

func (g *GridStore) do(ctx context.Context, method, url string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("authId", g.AuthID)

	resp, err := g.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("store: grid %s returned status %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func gridOperator(op Op) string {
	if op == OpNeq {
		return "NEQ"
	}
	return "EQ"
}
