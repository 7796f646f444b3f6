// internal/service/commerce/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"errors"

	gomysql "github.com/go-sql-driver/mysql"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"mall/internal/service/commerce/domain"
)

// GormLedger 是 Ledger 的 MySQL 实现。
//
// Transact 把 gorm 事务句柄塞进 ctx，各仓储方法通过 conn(ctx) 取出来；
// 在事务外调用时退化为普通连接。嵌套 Transact 复用外层事务句柄。
type GormLedger struct {
	db *gorm.DB
}

type txKey struct{}

// NewGormLedger 按 DSN 打开 MySQL 连接。
func NewGormLedger(dsn string) (*GormLedger, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open mysql connection")
	}
	return &GormLedger{db: db}, nil
}

// AutoMigrate 建表。开发环境用，生产走独立的迁移流程。
func (l *GormLedger) AutoMigrate() error {
	return l.db.AutoMigrate(
		&userModel{},
		&couponModel{},
		&userCouponModel{},
		&productModel{},
		&orderModel{},
		&orderItemModel{},
		&cartItemModel{},
	)
}

func (l *GormLedger) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (l *GormLedger) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return l.db.WithContext(ctx)
}

func (l *GormLedger) Users() domain.UserRepository             { return gormUserRepo{l} }
func (l *GormLedger) Coupons() domain.CouponRepository         { return gormCouponRepo{l} }
func (l *GormLedger) UserCoupons() domain.UserCouponRepository { return gormUserCouponRepo{l} }
func (l *GormLedger) Products() domain.ProductRepository       { return gormProductRepo{l} }
func (l *GormLedger) Orders() domain.OrderRepository           { return gormOrderRepo{l} }
func (l *GormLedger) Carts() domain.CartRepository             { return gormCartRepo{l} }

// isDuplicateKey 识别唯一索引冲突。gorm 的错误翻译和底层驱动错误都认。
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *gomysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

type gormUserRepo struct{ l *GormLedger }

func (r gormUserRepo) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	var m userModel
	if err := r.l.conn(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return toDomainUser(&m), nil
}

func (r gormUserRepo) Save(ctx context.Context, user *domain.User) error {
	return r.l.conn(ctx).Save(toUserModel(user)).Error
}

type gormCouponRepo struct{ l *GormLedger }

func (r gormCouponRepo) FindByID(ctx context.Context, id int64) (*domain.Coupon, error) {
	var m couponModel
	if err := r.l.conn(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCouponNotFound
		}
		return nil, err
	}
	return toDomainCoupon(&m), nil
}

func (r gormCouponRepo) Save(ctx context.Context, coupon *domain.Coupon) error {
	return r.l.conn(ctx).Save(toCouponModel(coupon)).Error
}

type gormUserCouponRepo struct{ l *GormLedger }

func (r gormUserCouponRepo) FindByID(ctx context.Context, id int64) (*domain.UserCoupon, error) {
	var m userCouponModel
	if err := r.l.conn(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserCouponNotFound
		}
		return nil, err
	}
	return toDomainUserCoupon(&m), nil
}

func (r gormUserCouponRepo) FindByUserAndCoupon(ctx context.Context, userID, couponID int64) (*domain.UserCoupon, error) {
	var m userCouponModel
	err := r.l.conn(ctx).Where("user_id = ? AND coupon_id = ?", userID, couponID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserCouponNotFound
		}
		return nil, err
	}
	return toDomainUserCoupon(&m), nil
}

func (r gormUserCouponRepo) Create(ctx context.Context, uc *domain.UserCoupon) error {
	m := toUserCouponModel(uc)
	if err := r.l.conn(ctx).Create(m).Error; err != nil {
		if isDuplicateKey(err) {
			return domain.ErrCouponAlreadyIssued
		}
		return err
	}
	uc.ID = m.ID
	return nil
}

func (r gormUserCouponRepo) Save(ctx context.Context, uc *domain.UserCoupon) error {
	return r.l.conn(ctx).Save(toUserCouponModel(uc)).Error
}

type gormProductRepo struct{ l *GormLedger }

func (r gormProductRepo) FindAll(ctx context.Context) ([]*domain.Product, error) {
	var ms []productModel
	if err := r.l.conn(ctx).Order("id").Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Product, 0, len(ms))
	for i := range ms {
		out = append(out, toDomainProduct(&ms[i]))
	}
	return out, nil
}

func (r gormProductRepo) FindByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Product, error) {
	return r.findByIDs(r.l.conn(ctx), ids)
}

func (r gormProductRepo) FindByIDsForUpdate(ctx context.Context, ids []int64) (map[int64]*domain.Product, error) {
	return r.findByIDs(r.l.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), ids)
}

func (r gormProductRepo) findByIDs(db *gorm.DB, ids []int64) (map[int64]*domain.Product, error) {
	var ms []productModel
	if err := db.Where("id IN ?", ids).Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make(map[int64]*domain.Product, len(ms))
	for i := range ms {
		out[ms[i].ID] = toDomainProduct(&ms[i])
	}
	return out, nil
}

func (r gormProductRepo) Save(ctx context.Context, product *domain.Product) error {
	return r.l.conn(ctx).Save(toProductModel(product)).Error
}

type gormOrderRepo struct{ l *GormLedger }

func (r gormOrderRepo) Create(ctx context.Context, order *domain.Order, items []*domain.OrderItem) error {
	return r.l.Transact(ctx, func(ctx context.Context) error {
		m := toOrderModel(order)
		if err := r.l.conn(ctx).Create(m).Error; err != nil {
			return err
		}
		order.ID = m.ID
		for _, item := range items {
			im := &orderItemModel{
				OrderID:   m.ID,
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice,
			}
			if err := r.l.conn(ctx).Create(im).Error; err != nil {
				return err
			}
			item.ID = im.ID
			item.OrderID = m.ID
		}
		return nil
	})
}

func (r gormOrderRepo) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	var m orderModel
	if err := r.l.conn(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return toDomainOrder(&m), nil
}

func (r gormOrderRepo) Save(ctx context.Context, order *domain.Order) error {
	return r.l.conn(ctx).Save(toOrderModel(order)).Error
}

func (r gormOrderRepo) FindItems(ctx context.Context, orderID int64) ([]*domain.OrderItem, error) {
	var ms []orderItemModel
	if err := r.l.conn(ctx).Where("order_id = ?", orderID).Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.OrderItem, 0, len(ms))
	for i := range ms {
		out = append(out, toDomainOrderItem(&ms[i]))
	}
	return out, nil
}

type gormCartRepo struct{ l *GormLedger }

func (r gormCartRepo) FindByUser(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	var ms []cartItemModel
	if err := r.l.conn(ctx).Where("user_id = ?", userID).Order("id").Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]domain.CartItem, 0, len(ms))
	for i := range ms {
		out = append(out, toDomainCartItem(&ms[i]))
	}
	return out, nil
}

func (r gormCartRepo) Save(ctx context.Context, item *domain.CartItem) error {
	m := &cartItemModel{ID: item.ID, UserID: item.UserID, ProductID: item.ProductID, Quantity: item.Quantity}
	if err := r.l.conn(ctx).Save(m).Error; err != nil {
		return err
	}
	item.ID = m.ID
	return nil
}

func (r gormCartRepo) Clear(ctx context.Context, userID int64) error {
	return r.l.conn(ctx).Where("user_id = ?", userID).Delete(&cartItemModel{}).Error
}
