// cashpilot/internal/forecast/export.go
package forecast

import (
	"fmt"

	"cashpilot/models"

	"github.com/xuri/excelize/v2"
)

// ExportXLSX выгружает прогноз в книгу Excel: лист с недельными корзинами
// и разбивкой по уверенности плюс сводка. Вызывающий отвечает за закрытие
// и отдачу файла.
func ExportXLSX(fc *Forecast) (*excelize.File, error) {
	f := excelize.NewFile()
	const sheet = "Прогноз"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{
		"Неделя", "Начало недели", "Поступления", "Расходы", "Чистый поток",
		"Остаток", "Поступления (high)", "Поступления (medium)", "Поступления (low)",
	}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}

	for i, w := range fc.Weeks {
		row := i + 2
		weekLabel := fmt.Sprintf("W%d", w.WeekIndex)
		if w.WeekIndex == 0 {
			weekLabel = "Сейчас"
		}
		values := []interface{}{
			weekLabel,
			w.WeekStart.Format("2006-01-02"),
			w.CashIn,
			w.CashOut,
			w.Net,
			w.EndingBalance,
			w.InByConfidence[models.ConfidenceHigh],
			w.InByConfidence[models.ConfidenceMedium],
			w.InByConfidence[models.ConfidenceLow],
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	summaryRow := len(fc.Weeks) + 3
	summary := [][2]interface{}{
		{"Минимальный остаток", fc.Summary.LowestBalance},
		{"Неделя минимума", fc.Summary.LowestBalanceWeek},
		{"Взлетная полоса, недель", fc.Summary.RunwayWeeks},
		{"Уверенность прогноза", fmt.Sprintf("%.0f%%", fc.Summary.ConfidenceScore*100)},
	}
	for i, pair := range summary {
		keyCell, _ := excelize.CoordinatesToCellName(1, summaryRow+i)
		valCell, _ := excelize.CoordinatesToCellName(2, summaryRow+i)
		if err := f.SetCellValue(sheet, keyCell, pair[0]); err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, valCell, pair[1]); err != nil {
			return nil, err
		}
	}

	return f, nil
}
