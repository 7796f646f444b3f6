// internal/service/commerce/application/metrics.go
package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	couponsIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mall_coupons_issued_total",
		Help: "Number of user coupons successfully issued.",
	})
	ordersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mall_orders_created_total",
		Help: "Number of orders accepted at checkout.",
	})
	ordersCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mall_orders_completed_total",
		Help: "Number of orders that reached COMPLETED.",
	})
	ordersFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mall_orders_failed_total",
		Help: "Number of orders that reached FAILED.",
	})
	compensationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mall_compensation_failures_total",
		Help: "Number of compensation actions that themselves failed and need an operator.",
	})
)
