package catalog

import "time"

// ProductView is the public JSON shape of a product. The internal id is not
// exposed; stock fields appear only when aggregates were requested.
type ProductView struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	OnHand      *int64    `json:"on_hand,omitempty"`
	Taken       *int64    `json:"taken,omitempty"`
	Net         *int64    `json:"net,omitempty"`
}

// NewProductView shapes a listing for output.
func NewProductView(l Listing) ProductView {
	v := ProductView{
		Code:        l.Product.Code,
		Name:        l.Product.Name,
		Description: l.Product.Description,
		CreatedAt:   l.Product.CreatedAt,
		UpdatedAt:   l.Product.UpdatedAt,
	}
	if l.Stock != nil {
		onHand, taken, net := l.Stock.OnHand, l.Stock.Taken, l.Stock.Net
		v.OnHand, v.Taken, v.Net = &onHand, &taken, &net
	}
	return v
}

// NewProductViews shapes a listing page.
func NewProductViews(ls []Listing) []ProductView {
	out := make([]ProductView, len(ls))
	for i, l := range ls {
		out[i] = NewProductView(l)
	}
	return out
}

// AddStockRequest is the payload of the add-stock endpoint.
type AddStockRequest struct {
	OnHand         *int64 `json:"on_hand" validate:"required"`
	Taken          *int64 `json:"taken"`
	ProductionDate string `json:"production_date" validate:"required,datetime=2006-01-02"`
}

// MessageResponse carries a plain confirmation message.
type MessageResponse struct {
	Response string `json:"response"`
}
