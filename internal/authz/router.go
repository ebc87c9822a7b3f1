package authz

import (
	"fmt"

	"github.com/code0ns/eventually/internal/domain"
)

// Маршруты по ролям.
const (
	LoginRoute = "/login"
	ClientHome = "/home"
	AgencyHome = "/agency-dashboard"
	AdminHome  = "/admin-dashboard"
)

// Decision — результат проверки доступа: либо Allow, либо редирект.
type Decision struct {
	Allow      bool
	RedirectTo string
}

// Allowed — разрешающее решение.
var Allowed = Decision{Allow: true}

// Redirect строит решение-редирект.
func Redirect(route string) Decision {
	return Decision{RedirectTo: route}
}

// HomeRoute возвращает домашний маршрут роли. Функция тотальна на закрытом
// наборе ролей; всё остальное — ошибка авторизации (fail closed).
func HomeRoute(r domain.Role) (string, error) {
	switch r {
	case domain.RoleClient:
		return ClientHome, nil
	case domain.RoleAgency:
		return AgencyHome, nil
	case domain.RoleAdmin:
		return AdminHome, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnknownRole, r)
}

// Authorize решает, пускать ли сессию на страницу с требуемой ролью.
// Чистая функция без побочных эффектов: навигацию выполняет вызывающий.
// Отсутствие сессии — редирект на логин; чужая роль — редирект на её
// домашний маршрут; нераспознанная роль — ошибка, доступ не выдаётся.
func Authorize(id domain.Identity, authenticated bool, required domain.Role) (Decision, error) {
	if !authenticated {
		return Redirect(LoginRoute), nil
	}
	if id.Role == required && required.Valid() {
		return Allowed, nil
	}
	home, err := HomeRoute(id.Role)
	if err != nil {
		return Decision{}, err
	}
	return Redirect(home), nil
}
