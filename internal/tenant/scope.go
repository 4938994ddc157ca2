package tenant

import "gorm.io/gorm"

// Scope restricts a query to a single company. Every repository query on
// shared tables must apply it; cross-tenant reads are never legal.
func Scope(companyID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("company_id = ?", companyID)
	}
}
