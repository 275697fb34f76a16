package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// UsernameBase lowercases first+last name and keeps only [a-z0-9].
func UsernameBase(firstName, lastName string) string {
	base := nonAlnum.ReplaceAllString(strings.ToLower(firstName+lastName), "")
	if base == "" {
		return "panelist"
	}
	return base
}

// EnsureUniqueUsername returns base when it is free, otherwise base followed by
// the smallest positive integer not already taken.
func EnsureUniqueUsername(db *gorm.DB, base string) (string, error) {
	var count int64
	if err := db.Table("users").Where("username = ?", base).Count(&count).Error; err != nil {
		return "", err
	}
	if count == 0 {
		return base, nil
	}

	var taken []string
	if err := db.Table("users").
		Where("username LIKE ?", base+"%").
		Pluck("username", &taken).Error; err != nil {
		return "", err
	}

	used := make(map[int]bool, len(taken))
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(base) + `(\d+)$`)
	for _, name := range taken {
		m := re.FindStringSubmatch(name)
		if len(m) != 2 {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil {
			used[n] = true
		}
	}

	for n := 1; ; n++ {
		if !used[n] {
			return fmt.Sprintf("%s%d", base, n), nil
		}
	}
}
