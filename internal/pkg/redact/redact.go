// redact — маскирование чувствительных значений перед записью
// в логи и метаданные аудита.
package redact

import "strings"

// Email оставляет первые два символа local-part и домен.
func Email(s string) string {
	parts := strings.Split(s, "@")
	if len(parts) != 2 {
		return "***"
	}

	local, domain := parts[0], parts[1]
	// Считаем руны, не байты: многобайтовая local-part не должна
	// обрезаться посреди символа.
	if r := []rune(local); len(r) > 2 {
		local = string(r[:2]) + "***"
	} else {
		local = "***"
	}

	return local + "@" + domain
}

// IP обрезает последний октет IPv4 / последнюю группу IPv6.
func IP(s string) string {
	if i := strings.LastIndex(s, "."); i > 0 {
		return s[:i] + ".x"
	}
	if i := strings.LastIndex(s, ":"); i > 0 {
		return s[:i] + ":x"
	}

	return "***"
}

func Token() string    { return "[REDACTED_TOKEN]" }
func Password() string { return "[REDACTED_PASSWORD]" }
