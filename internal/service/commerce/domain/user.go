// internal/service/commerce/domain/user.go
package domain

// User 是用户记录。不变式：任何已提交状态下 Point >= 0。
type User struct {
	ID    int64
	Name  string
	Point int64 // 余额
}

// ValidateSufficientPoint 校验余额是否足够。
func (u *User) ValidateSufficientPoint(amount int64) error {
	if u.Point < amount {
		return ErrInsufficientPoint
	}
	return nil
}

// DeductPoint 扣减余额，不足时拒绝。
func (u *User) DeductPoint(amount int64) error {
	if err := u.ValidateSufficientPoint(amount); err != nil {
		return err
	}
	u.Point -= amount
	return nil
}

// RestorePoint 是补偿路径：把余额加回去。
func (u *User) RestorePoint(amount int64) {
	u.Point += amount
}
