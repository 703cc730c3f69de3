package domain

import (
	"time"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "Pending"
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusShipped    OrderStatus = "Shipped"
	OrderStatusDelivered  OrderStatus = "Delivered"
	OrderStatusCancelled  OrderStatus = "Cancelled"
)

// orderTransitions lists the statuses reachable from each status. Delivered
// and Cancelled are terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  nil,
	OrderStatusCancelled:  nil,
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// CanTransitionTo reports whether an order in status s may move to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// HoldsStock reports whether an order in status s still has its units taken
// out of product stock.
func (s OrderStatus) HoldsStock() bool {
	return s.Valid() && s != OrderStatusCancelled
}

// MaxOrderLines bounds the number of line items in one order so that the
// items, the order and the stock updates fit in a single store transaction.
const MaxOrderLines = 48

type Order struct {
	ID               string      `json:"id" dynamodbav:"id"`
	OrderItems       []string    `json:"orderItems" dynamodbav:"orderItems"`
	ShippingAddress1 string      `json:"shippingAddress1" dynamodbav:"shippingAddress1"`
	ShippingAddress2 string      `json:"shippingAddress2,omitempty" dynamodbav:"shippingAddress2,omitempty"`
	City             string      `json:"city" dynamodbav:"city"`
	Zip              string      `json:"zip" dynamodbav:"zip"`
	Country          string      `json:"country" dynamodbav:"country"`
	Phone            string      `json:"phone" dynamodbav:"phone"`
	Status           OrderStatus `json:"status" dynamodbav:"status"`
	TotalPrice       float64     `json:"totalPrice" dynamodbav:"totalPrice"`
	User             string      `json:"user" dynamodbav:"user"`
	DateOrdered      time.Time   `json:"dateOrdered" dynamodbav:"dateOrdered"`
}

// OrderItem is a single product/quantity line. UnitPrice is the product price
// captured when the order was placed.
type OrderItem struct {
	ID        string  `json:"id" dynamodbav:"id"`
	OrderID   string  `json:"-" dynamodbav:"orderId"`
	Position  int     `json:"-" dynamodbav:"position"`
	Product   string  `json:"product" dynamodbav:"product"`
	Quantity  int     `json:"quantity" dynamodbav:"quantity"`
	UnitPrice float64 `json:"unitPrice" dynamodbav:"unitPrice"`
}

type ShippingInfo struct {
	ShippingAddress1 string `json:"shippingAddress1" binding:"required"`
	ShippingAddress2 string `json:"shippingAddress2"`
	City             string `json:"city" binding:"required"`
	Zip              string `json:"zip" binding:"required"`
	Country          string `json:"country" binding:"required"`
	Phone            string `json:"phone" binding:"required"`
}

type OrderLine struct {
	Product  string `json:"product" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,gt=0"`
}

type CreateOrderRequest struct {
	OrderItems []OrderLine `json:"orderItems" binding:"required,min=1,dive"`
	ShippingInfo
	User string `json:"user"`
}

type UpdateOrderStatusRequest struct {
	Status OrderStatus `json:"status" binding:"required"`
}

// OrderItemDetails is an OrderItem with its product resolved. Product is nil
// when the product has since been deleted.
type OrderItemDetails struct {
	OrderItem
	Product *Product `json:"product"`
}

type OrderDetails struct {
	Order
	OrderItems []OrderItemDetails `json:"orderItems"`
	User       *UserSummary       `json:"user"`
}

// OrderSummary is a list entry with the ordering user's name resolved.
type OrderSummary struct {
	Order
	User *UserSummary `json:"user"`
}
