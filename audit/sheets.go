package audit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"

	"github.com/osmwatch/osmwatch/changeset"
)

// Sheets records review changesets in a Google Sheet, newest at the
// top. The service account behind the credentials needs write access
// to the spreadsheet.
type Sheets struct {
	svc           *sheets.Service
	spreadsheetID string

	mu      sync.Mutex
	sheetID int64
	ready   bool
}

// NewSheets builds a store from service account credentials JSON, as
// handed out by the Google Cloud console.
func NewSheets(ctx context.Context, credentialsJSON []byte, spreadsheetID string) (*Sheets, error) {
	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, errors.Wrap(err, "loading sheets credentials")
	}
	svc, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, errors.Wrap(err, "creating sheets client")
	}
	return &Sheets{svc: svc, spreadsheetID: spreadsheetID}, nil
}

func newSheetsWithService(svc *sheets.Service, spreadsheetID string) *Sheets {
	return &Sheets{svc: svc, spreadsheetID: spreadsheetID}
}

func (s *Sheets) LogNeedsReview(ctx context.Context, cs *changeset.Changeset, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensure(ctx); err != nil {
		return err
	}

	id := strconv.FormatInt(cs.ID, 10)
	already, err := s.logged(ctx, id)
	if err != nil {
		// better a duplicate row than a lost one
		logger.Warnf("duplicate check for changeset %s: %s", id, err)
	} else if already {
		logger.Debugf("changeset %s already audited, skipping", id)
		return nil
	}

	if err := s.insertRowAt(ctx, 1); err != nil {
		return errors.Wrapf(err, "inserting row for changeset %s", id)
	}
	if err := s.writeRow(ctx, "A2", buildRow(cs, time.Now())); err != nil {
		return errors.Wrapf(err, "writing row for changeset %s", id)
	}
	logger.Printf("audited changeset %s (%s)", id, source)
	return nil
}

// ensure looks up the sheet id and makes sure row 1 carries the
// header. Runs once, callers must hold the lock.
func (s *Sheets) ensure(ctx context.Context) error {
	if s.ready {
		return nil
	}
	meta, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return errors.Wrap(err, "reading spreadsheet")
	}
	if len(meta.Sheets) == 0 {
		return errors.Errorf("spreadsheet %s has no sheets", s.spreadsheetID)
	}
	s.sheetID = meta.Sheets[0].Properties.SheetId

	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, "A1:N1").Context(ctx).Do()
	if err != nil {
		return errors.Wrap(err, "reading header row")
	}
	if !headerPresent(resp.Values) {
		if len(resp.Values) != 0 {
			if err := s.insertRowAt(ctx, 0); err != nil {
				return errors.Wrap(err, "inserting header row")
			}
		}
		if err := s.writeRow(ctx, "A1", header); err != nil {
			return errors.Wrap(err, "writing header row")
		}
	}
	s.ready = true
	return nil
}

func headerPresent(values [][]interface{}) bool {
	return len(values) > 0 && len(values[0]) > 0 && fmt.Sprint(values[0][0]) == header[0]
}

// logged scans the changeset id column below the header.
func (s *Sheets) logged(ctx context.Context, id string) (bool, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, "B2:B").Context(ctx).Do()
	if err != nil {
		return false, err
	}
	for _, row := range resp.Values {
		if len(row) > 0 && fmt.Sprint(row[0]) == id {
			return true, nil
		}
	}
	return false, nil
}

func (s *Sheets) insertRowAt(ctx context.Context, index int64) error {
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			InsertDimension: &sheets.InsertDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:         s.sheetID,
					Dimension:       "ROWS",
					StartIndex:      index,
					EndIndex:        index + 1,
					ForceSendFields: []string{"StartIndex"},
				},
			},
		}},
	}
	_, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do()
	return err
}

func (s *Sheets) writeRow(ctx context.Context, start string, row []string) error {
	values := make([]interface{}, len(row))
	for i, v := range row {
		values[i] = v
	}
	_, err := s.svc.Spreadsheets.Values.
		Update(s.spreadsheetID, start, &sheets.ValueRange{Values: [][]interface{}{values}}).
		ValueInputOption("RAW").
		Context(ctx).Do()
	return err
}
