package models

type Category string

const (
	CategoryFood        Category = "Food"
	CategoryShopping    Category = "Shopping"
	CategoryTransport   Category = "Transport"
	CategoryUtilities   Category = "Utilities"
	CategoryTravel      Category = "Travel"
	CategoryTransaction Category = "Transaction"
	CategoryOther       Category = "Other"
)

// Categories is the closed set a reasoning engine may assign, in tie-break order.
var Categories = []Category{
	CategoryFood,
	CategoryShopping,
	CategoryTransport,
	CategoryUtilities,
	CategoryTravel,
	CategoryTransaction,
	CategoryOther,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Transaction is a single statement line as extracted by the reasoning engine.
// Date is kept in YYYY-MM-DD form.
type Transaction struct {
	Date     string   `json:"date"`
	Merchant string   `json:"merchant"`
	Amount   float64  `json:"amount"`
	Category Category `json:"category"`
}
