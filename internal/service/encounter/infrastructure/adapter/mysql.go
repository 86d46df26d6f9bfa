package adapter

import (
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenMysql 打开 MySQL 连接并迁移提交相关的表。
func OpenMysql(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}
	if err := db.AutoMigrate(&SubmissionModel{}, &SubmissionStepModel{}); err != nil {
		return nil, errors.Wrap(err, "migrate submission tables")
	}
	return db, nil
}
