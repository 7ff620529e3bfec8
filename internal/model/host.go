// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Host はSSOを利用できるテナントホストを表す。
// HostNameは保存・検索の前に必ず小文字に正規化する。
type Host struct {
	ID           string   `json:"id"`
	HostName     string   `json:"hostName"`
	Master       bool     `json:"master"`
	Environments []string `json:"environments"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NormalizeHostName はホスト名を比較・保存用に正規化する。
func NormalizeHostName(hostName string) string {
	return strings.ToLower(strings.TrimSpace(hostName))
}

// ActiveIn は指定された実行環境でこのホストが有効かを返す。
func (h *Host) ActiveIn(environment string) bool {
	for _, env := range h.Environments {
		if env == environment {
			return true
		}
	}
	return false
}

// ContainsHost はホスト名リストに指定ホストが含まれるかを判定する。
// 比較は正規化済みホスト名で行う。
func ContainsHost(hosts []string, hostName string) bool {
	hostName = NormalizeHostName(hostName)
	for _, h := range hosts {
		if NormalizeHostName(h) == hostName {
			return true
		}
	}
	return false
}
