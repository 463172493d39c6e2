package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketplace/internal/metrics"
	"marketplace/internal/models"
	"marketplace/internal/repositories"
	"marketplace/internal/scheduler"
)

// CartItem is a product reference in a checkout request. Client supplied
// prices are never read.
type CartItem struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity"`
}

// UnmarshalJSON accepts the quantity as a number or a numeric string.
// Fractional numbers are truncated; a missing or null quantity is left at zero
// and clamped to 1 when the order is built.
func (i *CartItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		ProductID string          `json:"productId"`
		Quantity  json.RawMessage `json:"quantity"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	quantity, err := parseQuantity(raw.Quantity)
	if err != nil {
		return err
	}

	i.ProductID = raw.ProductID
	i.Quantity = quantity
	return nil
}

func parseQuantity(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		text = strings.TrimSpace(text)
		if text == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(text)
		if err != nil {
			return 0, fmt.Errorf("invalid quantity %q: %w", text, err)
		}
		return n, nil
	}

	var number float64
	if err := json.Unmarshal(raw, &number); err != nil {
		return 0, fmt.Errorf("invalid quantity %s: %w", raw, err)
	}
	return int(number), nil
}

// EventPublisher publishes order events. *rabbitmq.Client satisfies it.
type EventPublisher interface {
	Publish(routingKey string, body []byte) error
}

// DeferredScheduler runs a task once after a delay.
type DeferredScheduler interface {
	After(name string, delay time.Duration, task scheduler.Task) error
}

// OrderEvent is the payload of order.created and order.completed events.
type OrderEvent struct {
	OrderID    string             `json:"orderId"`
	BuyerID    string             `json:"buyerId"`
	Status     models.OrderStatus `json:"status"`
	TotalPrice decimal.Decimal    `json:"totalPrice"`
	Flow       string             `json:"flow"`
}

const (
	flowDirect = "direct"
	flowMpesa  = "mpesa"
)

// OrderService handles business logic related to orders.
type OrderService struct {
	orderRepo    repositories.OrderRepository
	productRepo  repositories.ProductRepository
	scheduler    DeferredScheduler
	publisher    EventPublisher // nil disables events
	confirmDelay time.Duration
	clock        clockwork.Clock
	logger       *zap.Logger
}

// NewOrderService creates a new OrderService. publisher may be nil.
func NewOrderService(
	orderRepo repositories.OrderRepository,
	productRepo repositories.ProductRepository,
	sched DeferredScheduler,
	publisher EventPublisher,
	confirmDelay time.Duration,
	clock clockwork.Clock,
	logger *zap.Logger,
) *OrderService {
	return &OrderService{
		orderRepo:    orderRepo,
		productRepo:  productRepo,
		scheduler:    sched,
		publisher:    publisher,
		confirmDelay: confirmDelay,
		clock:        clock,
		logger:       logger,
	}
}

// CreateOrder places a directly paid order. It is persisted as completed.
func (s *OrderService) CreateOrder(ctx context.Context, buyerID string, items []CartItem) (*models.Order, error) {
	order, err := s.buildOrder(ctx, buyerID, items, models.OrderStatusCompleted)
	if err != nil {
		return nil, err
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order in repository: %w", err)
	}

	metrics.OrdersPlaced.WithLabelValues(flowDirect).Inc()
	s.logger.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("buyer_id", buyerID),
		zap.String("total", order.TotalPrice.String()),
	)
	s.publish("order.created", order, flowDirect)
	return order, nil
}

// InitiateMpesaCheckout persists a pending order and schedules its simulated
// payment confirmation. Only the status changes when the confirmation fires.
// If the process exits first, the order stays pending.
func (s *OrderService) InitiateMpesaCheckout(ctx context.Context, buyerID string, items []CartItem, phone string) (*models.Order, error) {
	if len(items) == 0 {
		return nil, invalid("Order items are required")
	}
	if strings.TrimSpace(phone) == "" {
		return nil, invalid("Phone number is required for M-Pesa")
	}

	order, err := s.buildOrder(ctx, buyerID, items, models.OrderStatusPending)
	if err != nil {
		return nil, err
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order in repository: %w", err)
	}

	metrics.OrdersPlaced.WithLabelValues(flowMpesa).Inc()
	s.logger.Info("mpesa checkout initiated",
		zap.String("order_id", order.ID),
		zap.String("buyer_id", buyerID),
	)
	s.publish("order.created", order, flowMpesa)

	orderID := order.ID
	err = s.scheduler.After("mpesa-confirm:"+orderID, s.confirmDelay, func(ctx context.Context) error {
		return s.completeOrder(ctx, orderID)
	})
	if err != nil {
		// The order is stored; it simply never leaves pending.
		s.logger.Error("failed to schedule mpesa confirmation", zap.String("order_id", orderID), zap.Error(err))
	}

	return order, nil
}

// GetOrdersForBuyer lists the buyer's orders, newest first, with their items.
func (s *OrderService) GetOrdersForBuyer(ctx context.Context, buyerID string) ([]models.Order, error) {
	orders, err := s.orderRepo.GetByBuyer(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders for buyer %s: %w", buyerID, err)
	}
	return orders, nil
}

// buildOrder resolves every item against the catalog before anything is
// persisted, so an unknown product never leaves a partial order behind.
func (s *OrderService) buildOrder(ctx context.Context, buyerID string, items []CartItem, status models.OrderStatus) (*models.Order, error) {
	if len(items) == 0 {
		return nil, invalid("Order items are required")
	}

	total := decimal.Zero
	orderItems := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		product, err := s.productRepo.GetByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, &InvalidProductError{ProductID: item.ProductID}
			}
			return nil, fmt.Errorf("failed to load product %s: %w", item.ProductID, err)
		}

		quantity := item.Quantity
		if quantity < 1 {
			quantity = 1
		}

		orderItems = append(orderItems, models.OrderItem{
			ProductID: product.ID,
			Title:     product.Title,
			Price:     product.Price,
			Quantity:  quantity,
		})
		total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(quantity))))
	}

	now := s.clock.Now().UTC()
	return &models.Order{
		ID:         generateID("o_", now),
		BuyerID:    buyerID,
		Items:      orderItems,
		TotalPrice: total,
		Status:     status,
		CreatedAt:  now,
	}, nil
}

func (s *OrderService) completeOrder(ctx context.Context, orderID string) error {
	if err := s.orderRepo.UpdateStatus(ctx, orderID, models.OrderStatusCompleted); err != nil {
		return fmt.Errorf("failed to complete order %s: %w", orderID, err)
	}
	metrics.DeferredCompletions.Inc()

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		s.logger.Warn("completed order could not be reloaded", zap.String("order_id", orderID), zap.Error(err))
		return nil
	}
	s.publish("order.completed", order, flowMpesa)
	return nil
}

func (s *OrderService) publish(routingKey string, order *models.Order, flow string) {
	if s.publisher == nil {
		return
	}

	body, err := json.Marshal(OrderEvent{
		OrderID:    order.ID,
		BuyerID:    order.BuyerID,
		Status:     order.Status,
		TotalPrice: order.TotalPrice,
		Flow:       flow,
	})
	if err != nil {
		s.logger.Error("failed to marshal order event", zap.String("order_id", order.ID), zap.Error(err))
		return
	}

	if err := s.publisher.Publish(routingKey, body); err != nil {
		s.logger.Warn("failed to publish order event",
			zap.String("routing_key", routingKey),
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}
}
