package models

import "time"

// User 用户表（注册/登录/转账收款人查找）
type User struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string    `gorm:"size:100;not null" json:"name"`
	Email        string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (User) TableName() string {
	return "users"
}

// PublicUser 对外暴露的用户信息（搜索结果、排行榜）
type PublicUser struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
