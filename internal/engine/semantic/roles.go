package semantic

import (
	"path"
	"strings"

	"github.com/gobwas/glob"
)

type Role string

const (
	RoleInterface     Role = "interface"
	RoleService       Role = "service"
	RoleDataAccess    Role = "data-access"
	RoleDomainModel   Role = "domain-model"
	RoleUtility       Role = "utility"
	RoleTest          Role = "test"
	RoleCommand       Role = "command"
	RoleConfiguration Role = "configuration"
)

type roleRule struct {
	role     Role
	segments glob.Glob
}

// Directory segment names per role. Matching is on lower-cased segments.
var defaultRoleRules = []struct {
	role    Role
	pattern string
}{
	{RoleInterface, "{handler,handlers,controller,controllers,api,apis,routes,router,rest,grpc,http,web,transport}"},
	{RoleService, "{service,services,svc,usecase,usecases,app,application}"},
	{RoleDataAccess, "{repository,repositories,repo,repos,store,stores,storage,db,database,dao,persistence}"},
	{RoleDomainModel, "{model,models,entity,entities,domain,types,schema}"},
	{RoleUtility, "{util,utils,helper,helpers,common,shared,lib}"},
	{RoleTest, "{test,tests,testing,testdata,spec,specs,__tests__,e2e,integration}"},
	{RoleCommand, "{cmd,cli,bin,commands}"},
	{RoleConfiguration, "{config,configs,configuration,settings}"},
}

func compileRoleRules() []roleRule {
	rules := make([]roleRule, 0, len(defaultRoleRules))
	for _, r := range defaultRoleRules {
		rules = append(rules, roleRule{role: r.role, segments: glob.MustCompile(r.pattern)})
	}
	return rules
}

// roleOf classifies a directory by its deepest segment that names a role.
// A directory whose files are all tests is a test directory regardless of
// its name.
func roleOf(rules []roleRule, dir string, files []string) (Role, bool) {
	if len(files) > 0 {
		allTests := true
		for _, f := range files {
			if !isTestFile(f) {
				allTests = false
				break
			}
		}
		if allTests {
			return RoleTest, true
		}
	}
	if dir == "." || dir == "" {
		return "", false
	}
	segments := strings.Split(dir, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		seg := strings.ToLower(segments[i])
		for _, r := range rules {
			if r.segments.Match(seg) {
				return r.role, true
			}
		}
	}
	return "", false
}

func isTestFile(p string) bool {
	base := strings.ToLower(path.Base(p))
	switch {
	case strings.HasSuffix(base, "_test.go"), strings.HasSuffix(base, "_test.py"):
		return true
	case strings.HasPrefix(base, "test_") && strings.HasSuffix(base, ".py"):
		return true
	case strings.Contains(base, ".test.") || strings.Contains(base, ".spec."):
		return true
	}
	return false
}
