// Package export dumps campaign outcomes and search results to XLSX.
package export

import (
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/zhfmzl/priceUpdate-BTB/internal/model"
)

// Sheet names.
const (
	SheetValuations = "valuations"
	SheetPlayers    = "players"
)

var (
	valuationHeader = []string{"entity_id", "season", "grade", "value", "kind", "error", "finished_at"}
	playerHeader    = []string{"id", "season", "name", "best_overall", "position_best", "prices"}
)

// WriteRecords saves records to path, one row per record after a header row.
func WriteRecords(path string, records []model.ValuationRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetValuations)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}
	addRow(sheet, valuationHeader)

	for _, r := range records {
		errMsg := ""
		if r.Err != nil {
			errMsg = r.Err.Error()
		}
		finished := ""
		if !r.FinishedAt.IsZero() {
			finished = r.FinishedAt.UTC().Format(time.RFC3339)
		}
		addRow(sheet, []string{
			strconv.FormatInt(r.EntityID, 10),
			strconv.FormatInt(r.EntityID/model.SeasonSpan, 10),
			strconv.Itoa(int(r.Grade)),
			r.Value,
			string(r.Kind),
			errMsg,
			finished,
		})
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "export: save file")
	}
	return nil
}

// WritePlayers saves search results to path. The prices column lists the
// stored grade prices as "grade=price" pairs.
func WritePlayers(path string, reports []model.PlayerReport) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetPlayers)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}
	addRow(sheet, playerHeader)

	for _, p := range reports {
		prices := ""
		if p.Profile.Prices != nil {
			for i, e := range p.Profile.Prices.Prices {
				if i > 0 {
					prices += " "
				}
				prices += strconv.Itoa(int(e.Grade)) + "=" + e.Price
			}
		}
		addRow(sheet, []string{
			strconv.FormatInt(p.ID, 10),
			strconv.FormatInt(p.Season(), 10),
			p.Name,
			strconv.FormatFloat(p.Abilities.Position.BestOverall, 'f', -1, 64),
			p.Abilities.Position.PositionBest,
			prices,
		})
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "export: save file")
	}
	return nil
}

// ReadRows reads every row of the named sheet, header included.
func ReadRows(path, sheetName string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "export: open file")
	}
	sheet, ok := f.Sheet[sheetName]
	if !ok {
		return nil, eris.Errorf("export: sheet %q not found", sheetName)
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		rows = append(rows, rowToStrings(row))
	}
	return rows, nil
}

func addRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
