//go:build windows

package convert

import (
	"log"

	"golang.org/x/sys/windows/registry"
)

// Hancom のセキュリティ承認モジュール設定。レジストリに登録しておくと
// オートメーション実行時のファイルアクセス確認ダイアログが抑止されます。
const (
	hancomRegistryPath = `SOFTWARE\HNC\HwpAutomation\Modules`
	securityModuleName = "FilePathCheckerModule"
)

// securityModuleRegistered はセキュリティモジュールが登録済みか確認します。
func securityModuleRegistered(logger *log.Logger) bool {
	key, err := registry.OpenKey(registry.CURRENT_USER, hancomRegistryPath, registry.QUERY_VALUE)
	if err != nil {
		if err != registry.ErrNotExist {
			logger.Printf("failed to check registry: %v", err)
		}
		return false
	}
	defer key.Close()

	if _, _, err := key.GetStringValue(securityModuleName); err != nil {
		return false
	}
	return true
}

// registerSecurityModule はセキュリティモジュールをレジストリに登録します。
func registerSecurityModule(logger *log.Logger) bool {
	key, _, err := registry.CreateKey(registry.CURRENT_USER, hancomRegistryPath, registry.SET_VALUE)
	if err != nil {
		logger.Printf("failed to create registry key: %v", err)
		return false
	}
	defer key.Close()

	if err := key.SetStringValue(securityModuleName, securityModuleName); err != nil {
		logger.Printf("failed to register security module: %v", err)
		return false
	}
	logger.Printf("security module registered")
	return true
}

// ensureSecurityModule は未登録の場合に登録を試みます。
// 登録に失敗しても変換自体は続行します（ダイアログが出る可能性があるだけ）。
func ensureSecurityModule(logger *log.Logger) {
	if securityModuleRegistered(logger) {
		return
	}
	logger.Printf("security module not found, attempting to register")
	if !registerSecurityModule(logger) {
		logger.Printf("could not register security module; conversion may require manual confirmation")
	}
}
