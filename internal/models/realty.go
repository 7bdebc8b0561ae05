package models

// RealtyRecord is the flat row produced from one registry extract
type RealtyRecord struct {
	Floor           string `json:"floor"`
	Number          string `json:"number"`
	CadastralNumber string `json:"cadastral_number"`
	Type            string `json:"type"`
	Area            string `json:"area"`
	OwnerNames      string `json:"owner_names"`
	RightName       string `json:"right_name"`
	PartSize        string `json:"part_size"`
	RegNumber       string `json:"reg_number"`
	RegDate         string `json:"reg_date"`
	Encumbrance     string `json:"encumbrance"`
	CadastralCost   string `json:"cadastral_cost"`
	RequeryNumber   string `json:"requery_number"`
}

// RealtyColumns lists the CSV columns in record field order
var RealtyColumns = []string{
	"Floor",
	"Number",
	"CadastralNumber",
	"Type",
	"Area",
	"OwnerNames",
	"RightName",
	"PartSize",
	"RegNumber",
	"RegDate",
	"Encumbrance",
	"CadastralCost",
	"RequeryNumber",
}

// Row returns the record values in RealtyColumns order
func (r RealtyRecord) Row() []string {
	return []string{
		r.Floor,
		r.Number,
		r.CadastralNumber,
		r.Type,
		r.Area,
		r.OwnerNames,
		r.RightName,
		r.PartSize,
		r.RegNumber,
		r.RegDate,
		r.Encumbrance,
		r.CadastralCost,
		r.RequeryNumber,
	}
}
