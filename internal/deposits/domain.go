package deposits

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// Record is one flattened deposit row as reported by the external source.
// Amounts are whole ARS pesos.
type Record struct {
	Date       time.Time `json:"-"`
	DateISO    string    `json:"date"`
	PlantKey   string    `json:"plant_key"`
	PlantName  string    `json:"plant_name"`
	DepositID  string    `json:"deposit_id"`
	Identifier string    `json:"identifier"`
	UserName   string    `json:"user_name"`
	Reparto    string    `json:"reparto"`
	Expected   int64     `json:"deposit_esperado"`
	Deposited  int64     `json:"total_amount"`
	Estado     string    `json:"estado"`
	Currency   string    `json:"currency_code"`
	Type       string    `json:"deposit_type"`
	DateTime   string    `json:"date_time"`
	POSName    string    `json:"pos_name"`
	STName     string    `json:"st_name"`
}

// payload mirrors the upstream by-plant response.
type payload struct {
	Plants map[string]plant `json:"plants"`
}

type plant struct {
	Name     string        `json:"name"`
	Deposits []wireDeposit `json:"deposits"`
}

type wireDeposit struct {
	DepositID  json.Number `json:"deposit_id"`
	Identifier string      `json:"identifier"`
	UserName   string      `json:"user_name"`
	Total      float64     `json:"total_amount"`
	Expected   float64     `json:"deposit_esperado"`
	Estado     string      `json:"estado"`
	Currency   string      `json:"currency_code"`
	Type       string      `json:"deposit_type"`
	DateTime   string      `json:"date_time"`
	POSName    string      `json:"pos_name"`
	STName     string      `json:"st_name"`
}

var repartoRe = regexp.MustCompile(`\b(\d{1,4})\b`)

// ParseReparto extracts the route number from a deposit user name.
// "119, RTO 119" yields "119"; "RTO 072" yields "72".
func ParseReparto(userName string) string {
	if userName == "" {
		return ""
	}
	m := repartoRe.FindStringSubmatch(userName)
	if m == nil {
		return ""
	}
	trimmed := strings.TrimLeft(m[1], "0")
	return trimmed
}
