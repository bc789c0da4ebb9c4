// Package models 行解析单元测试
package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRow_Int(t *testing.T) {
	row := Row{
		"int":       7,
		"int64":     int64(8),
		"float":     float64(9),
		"number":    json.Number("10"),
		"str":       " 11 ",
		"decimal":   "1500.00",
		"empty":     "",
		"nil":       nil,
		"bad":       "abc",
		"nan":       math.NaN(),
		"bool":      true,
		"slice":     []interface{}{1},
		"negative":  "-3",
		"fraction":  12.9,
		"huge":      1e20,
		"hugeNeg":   -1e20,
		"hugeStr":   "1e20",
		"inf":       math.Inf(1),
	}

	tests := []struct {
		field  string
		want   int64
		wantOK bool
	}{
		{"int", 7, true},
		{"int64", 8, true},
		{"float", 9, true},
		{"number", 10, true},
		{"str", 11, true},
		{"decimal", 1500, true},
		{"empty", 0, true},
		{"nil", 0, true},
		{"missing", 0, true},
		{"bad", 0, false},
		{"nan", 0, false},
		{"bool", 1, true},
		{"slice", 0, false},
		{"negative", -3, true},
		{"fraction", 12, true},
		{"huge", 0, false},
		{"hugeNeg", 0, false},
		{"hugeStr", 0, false},
		{"inf", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			got, ok := row.Int(tt.field)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, int64(0), row.IntOrZero("bad"))
	assert.Equal(t, int64(1500), row.IntOrZero("decimal"))
}

func TestRow_String(t *testing.T) {
	row := Row{
		"plain":  "Штраф",
		"select": map[string]interface{}{"id": 3, "value": "Штраф", "color": "red"},
		"number": 5,
		"nil":    nil,
	}

	assert.Equal(t, "Штраф", row.String("plain"))
	assert.Equal(t, "Штраф", row.String("select"))
	assert.Equal(t, "", row.String("number"))
	assert.Equal(t, "", row.String("nil"))
	assert.Equal(t, "", row.String("missing"))
}

func TestRow_ID(t *testing.T) {
	assert.Equal(t, int64(42), Row{"id": float64(42)}.ID())
	assert.Equal(t, int64(0), Row{}.ID())
}

func TestRow_Preview(t *testing.T) {
	row := Row{"title": "Звонок", "id": 3, "_order": "1.000"}
	assert.Equal(t, "{id: 3, title: Звонок}", row.Preview())
	assert.Equal(t, "{}", Row{}.Preview())
}

func TestDealFromRow(t *testing.T) {
	deal, ok := DealFromRow(Row{"agent_id": "5", "commission_amount": "1500.00", "date": "2024-05-01"})
	assert.True(t, ok)
	assert.Equal(t, Deal{AgentID: 5, CommissionAmount: 1500, Date: "2024-05-01"}, deal)

	deal, ok = DealFromRow(Row{"agent_id": 5, "commission_amount": "n/a"})
	assert.True(t, ok)
	assert.Zero(t, deal.CommissionAmount)
	assert.Empty(t, deal.Date)

	_, ok = DealFromRow(Row{"agent_id": "abc"})
	assert.False(t, ok)
}

func TestLedgerEntryFromRow(t *testing.T) {
	entry, ok := LedgerEntryFromRow(Row{
		"from_agent": float64(5),
		"amount":     200,
		"type":       map[string]interface{}{"value": "Штраф"},
		"date":       "2024-05-01T10:00:00",
	})
	assert.True(t, ok)
	assert.Equal(t, LedgerEntry{FromAgent: 5, Amount: 200, Type: "Штраф", Date: "2024-05-01T10:00:00"}, entry)

	_, ok = LedgerEntryFromRow(Row{"from_agent": []string{"x"}})
	assert.False(t, ok)
}

func TestFields(t *testing.T) {
	day := time.Date(2024, 5, 1, 18, 30, 0, 0, time.UTC)

	audit := ProcessLogEntry{Title: "Итог", Notes: "text", Date: day, OwnerTG: 9}.Fields()
	assert.Equal(t, "2024-05-01T18:30:00.000000", audit["date"])
	assert.Equal(t, int64(9), audit["owner_tg"])

	task := Task{Title: "Задача", Details: "позвонить", AssignedTo: 1, CreatedBy: 1, Status: TaskStatusNew, Date: day}.Fields()
	assert.Equal(t, "2024-05-01", task["date"])
	assert.Equal(t, TaskStatusNew, task["status"])

	obj := PropertyObject{Title: "Объект", Description: "2к", OwnerTG: 3, Status: ObjectStatusActive, Date: day}.Fields()
	assert.Equal(t, "2к", obj["description"])
}

func TestSchema(t *testing.T) {
	defs := Schema(TableNames{
		Deals:      "Успешные Сделки",
		CashPool:   "Общак",
		ProcessLog: "Собрание, рабочие процессы",
		Tasks:      "Задачи",
		Objects:    "Объекты",
	})
	assert.Len(t, defs, 5)

	byName := make(map[string]TableDefinition, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}
	deals, ok := byName["Успешные Сделки"]
	assert.True(t, ok)
	assert.Contains(t, deals.Fields, FieldDefinition{Name: "agent_id", Type: FieldTypeNumber})
	assert.Contains(t, byName["Общак"].Fields, FieldDefinition{Name: "type", Type: FieldTypeText})
}
