package database

import (
	"errors"
	"fmt"
	"time"

	driver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"paper_perps/models"
	"paper_perps/pkg/config"
)

// ErrDuplicateEmail 邮箱已被注册
var ErrDuplicateEmail = errors.New("email already registered")

// ErrUserNotFound 用户不存在
var ErrUserNotFound = errors.New("user not found")

// Database 显式构造的MySQL客户端，持有用户表
type Database struct {
	db *gorm.DB
}

// New 建立MySQL连接并确保表结构存在（幂等迁移）
func New(cfg *config.Config) (*Database, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.MySQLUser,
		cfg.MySQLPassword,
		cfg.MySQLHost,
		cfg.MySQLPort,
		cfg.MySQLDB,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("MySQL连接失败: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库实例失败: %v", err)
	}

	// 连接池设置
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 确保表结构存在
	if err := db.AutoMigrate(&models.User{}); err != nil {
		return nil, fmt.Errorf("用户表迁移失败: %v", err)
	}

	return &Database{db: db}, nil
}

// CreateUser 创建用户，邮箱冲突返回 ErrDuplicateEmail
func (d *Database) CreateUser(user *models.User) error {
	if err := d.db.Create(user).Error; err != nil {
		var mysqlErr *driver.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

// GetUserByEmail 按邮箱查找用户
func (d *Database) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	err := d.db.Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByID 按ID查找用户
func (d *Database) GetUserByID(id int64) (*models.User, error) {
	var user models.User
	err := d.db.First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUsersByIDs 批量查找用户名（排行榜展示用）
func (d *Database) GetUsersByIDs(ids []int64) (map[int64]*models.User, error) {
	result := make(map[int64]*models.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var users []models.User
	if err := d.db.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}

	for i := range users {
		result[users[i].ID] = &users[i]
	}
	return result, nil
}

// SearchUsers 按姓名或邮箱前缀搜索用户（转账收款人查找）
func (d *Database) SearchUsers(query string, limit int) ([]models.PublicUser, error) {
	if limit <= 0 || limit > 20 {
		limit = 20
	}

	var users []models.User
	pattern := query + "%"
	err := d.db.
		Where("name LIKE ? OR email LIKE ?", pattern, pattern).
		Order("name").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, err
	}

	result := make([]models.PublicUser, 0, len(users))
	for i := range users {
		result = append(result, models.PublicUser{ID: users[i].ID, Name: users[i].Name})
	}
	return result, nil
}
