package research

import (
	"regexp"
	"strconv"
	"strings"
)

// Aspects used with CompanyQuery.
const (
	AspectSize    = "company size employees"
	AspectCulture = "corporate culture"
)

var corporateSuffix = regexp.MustCompile(`(?i)株式会社|有限会社|合同会社|\(株\)|（株）|,?\s*\b(?:inc|corp|corporation|co|ltd|llc|gmbh|plc)\b\.?`)

// NormalizeCompany strips legal-form suffixes and prefixes from a company name.
func NormalizeCompany(name string) string {
	out := corporateSuffix.ReplaceAllString(name, " ")
	return strings.Join(strings.Fields(out), " ")
}

// CompanyQuery builds "{company} {aspect} {year}".
func CompanyQuery(company, aspect string, year int) string {
	return joinQuery(NormalizeCompany(company), aspect, strconv.Itoa(year))
}

// SkillQuery builds "{skill} {industry} demand market value {year}".
func SkillQuery(skill, industry string, year int) string {
	return joinQuery(skill, industry, "demand market value", strconv.Itoa(year))
}

// RoleQuery builds "{role} {company size} required skills experience".
func RoleQuery(role, companySize string) string {
	return joinQuery(role, companySize, "required skills experience")
}

func joinQuery(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
