package qbo

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatement(t *testing.T) {
	tests := []struct {
		name    string
		entity  string
		max     int
		filters []Filter
		want    string
		wantErr bool
	}{
		{
			name:   "all",
			entity: "Vendor",
			want:   "select * from Vendor",
		},
		{
			name:    "like_and_bool",
			entity:  "Vendor",
			max:     10,
			filters: []Filter{{"DisplayName", "like", "%acme%"}, {"Active", "=", false}},
			want:    "select * from Vendor where DisplayName LIKE '%acme%' and Active = false maxresults 10",
		},
		{
			name:    "quote_escaping",
			entity:  "Account",
			filters: []Filter{{"Name", "=", `Bob's \ Co`}},
			want:    `select * from Account where Name = 'Bob\'s \\ Co'`,
		},
		{
			name:    "in_list",
			entity:  "Account",
			filters: []Filter{{"AccountType", "IN", []string{"Expense", "Cost of Goods Sold"}}},
			want:    "select * from Account where AccountType IN ('Expense', 'Cost of Goods Sold')",
		},
		{
			name:    "numbers",
			entity:  "Bill",
			filters: []Filter{{"TotalAmt", ">", 99.5}, {"Id", "=", 4}},
			want:    "select * from Bill where TotalAmt > 99.5 and Id = 4",
		},
		{
			name:    "bad_entity",
			entity:  "Vendor where 1=1",
			wantErr: true,
		},
		{
			name:    "bad_field",
			entity:  "Vendor",
			filters: []Filter{{"Name or 1", "=", "x"}},
			wantErr: true,
		},
		{
			name:    "bad_operator",
			entity:  "Vendor",
			filters: []Filter{{"Name", "!=", "x"}},
			wantErr: true,
		},
		{
			name:    "bad_value",
			entity:  "Vendor",
			filters: []Filter{{"Name", "=", struct{}{}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Statement(tt.entity, tt.max, tt.filters...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDate(t *testing.T) {
	var d Date
	require.NoError(t, json.Unmarshal([]byte(`"2024-02-29"`), &d))
	assert.Equal(t, 29, d.Day())

	j, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2024-02-29"`, string(j))

	assert.Error(t, json.Unmarshal([]byte(`"29/02/2024"`), &d))

	_, err = ParseDate("2023-02-29")
	assert.Error(t, err)
}

func TestNewExpenseBillOmitsEmpty(t *testing.T) {
	j, err := json.Marshal(NewExpenseBill("42", "80", 12.5, "", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"VendorRef": {"value": "42"},
		"Line": [{
			"DetailType": "AccountBasedExpenseLineDetail",
			"Amount": 12.5,
			"AccountBasedExpenseLineDetail": {"AccountRef": {"value": "80"}}
		}]
	}`, string(j))
}
