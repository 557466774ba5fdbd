package parser

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
)

const (
	Network33Across = "33across"

	// RevenueScale is the number of decimal places a stored amount keeps.
	RevenueScale = 4

	dateLayout = "2006-01-02"

	columnLogin   = "Login"
	columnDate    = "Date"
	columnRevenue = "Estimated Revenue"

	// banner on line 1, header on line 2
	firstDataLine = 3
)

var (
	errMissingBanner = errors.New("missing banner line")
	errMissingHeader = errors.New("missing header")

	revenueCleaner = strings.NewReplacer("$", "", ",", "", " ", "")
)

type across33Row struct {
	Login   string `csv:"Login"`
	Date    string `csv:"Date"`
	Revenue string `csv:"Estimated Revenue"`
}

// Across33 decodes 33across revenue exports: a banner line followed by a CSV body with at
// least the Login, Date and Estimated Revenue columns.
type Across33 struct {
	logger Logger
}

func New33Across(logg Logger) *Across33 {
	return &Across33{logger: logg}
}

func (a *Across33) Decode(path string, site string) (map[time.Time]DailyRevenue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open report, %w", err)
	}
	defer f.Close()

	return a.decode(f, site)
}

func (a *Across33) decode(in io.Reader, site string) (map[time.Time]DailyRevenue, error) {
	br := bufio.NewReader(in)

	if _, err := br.ReadString('\n'); err != nil {
		return nil, &ParseError{Line: 1, Err: errMissingBanner}
	}

	body := csv.NewReader(br)
	body.TrimLeadingSpace = true

	header, err := body.Read()
	if err != nil {
		return nil, &ParseError{Line: 2, Err: errMissingHeader}
	}

	if err := checkHeader(header); err != nil {
		return nil, err
	}

	var rows []across33Row
	if err := gocsv.UnmarshalCSV(&replayReader{header: header, r: body}, &rows); err != nil {
		var csvErr *csv.ParseError
		if errors.As(err, &csvErr) {
			return nil, &ParseError{Line: csvErr.Line + 1, Err: csvErr.Err}
		}

		return nil, fmt.Errorf("cannot read report body, %w", err)
	}

	data := make(map[time.Time]DailyRevenue)

	for i, row := range rows {
		line := firstDataLine + i

		if !strings.EqualFold(strings.TrimSpace(row.Login), site) {
			a.logger.Debug("row skipped, login does not match site", "line", line, "login", row.Login, "site", site)

			continue
		}

		day, err := time.Parse(dateLayout, strings.TrimSpace(row.Date))
		if err != nil {
			return nil, &ParseError{Line: line, Column: columnDate, Value: row.Date, Err: err}
		}

		revenue, err := parseRevenue(row.Revenue)
		if err != nil {
			return nil, &ParseError{Line: line, Column: columnRevenue, Value: row.Revenue, Err: err}
		}

		if existing, ok := data[day]; ok {
			revenue = existing.Revenue.Add(revenue)
		}

		data[day] = DailyRevenue{Day: day, Revenue: revenue}
	}

	return data, nil
}

func checkHeader(header []string) error {
	present := make(map[string]bool, len(header))
	for _, column := range header {
		present[strings.TrimSpace(column)] = true
	}

	for _, column := range []string{columnLogin, columnDate, columnRevenue} {
		if !present[column] {
			return &ParseError{Line: 2, Err: fmt.Errorf("%w, column %q not found", errMissingHeader, column)}
		}
	}

	return nil
}

// parseRevenue accepts currency formatted amounts such as "$1,234.50". Amounts finer than
// RevenueScale decimal places are rejected rather than rounded on storage.
func parseRevenue(value string) (decimal.Decimal, error) {
	cleaned := revenueCleaner.Replace(strings.TrimSpace(value))
	if cleaned == "" {
		return decimal.Zero, errors.New("empty amount")
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, err
	}

	if !amount.Equal(amount.Truncate(RevenueScale)) {
		return decimal.Zero, fmt.Errorf("more than %d decimal places", RevenueScale)
	}

	return amount, nil
}

// replayReader hands the already consumed header back to gocsv before the body rows.
type replayReader struct {
	header []string
	r      *csv.Reader
}

func (rr *replayReader) Read() ([]string, error) {
	if rr.header != nil {
		header := rr.header
		rr.header = nil

		return header, nil
	}

	return rr.r.Read()
}

func (rr *replayReader) ReadAll() ([][]string, error) {
	var records [][]string

	for {
		record, err := rr.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}

		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}
}
