package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"library/internal/database"
	"library/internal/handlers"
	"library/internal/middleware"
	"library/internal/models"
	"library/internal/repositories"
	"library/internal/retry"
	"library/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	librarianEmail    = "librarian@example.com"
	librarianPassword = "librarian-pw"
)

type testEnv struct {
	app   *fiber.App
	store repositories.Store
	auth  *services.AuthService
}

// setupApp sets up a Fiber app for testing with in-memory SQLite and all handlers/services.
func setupApp(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := database.Open(database.DriverSQLite, dsn)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	store := repositories.NewRetryingStore(repositories.NewGormStore(db), retry.WithBaseDelay(time.Millisecond))
	authService := services.NewAuthService(store.Users(), repositories.NewMockTokenBlacklist(), "test_jwt_secret", time.Hour)
	require.NoError(t, authService.EnsureLibrarian(context.Background(), "Head Librarian", librarianEmail, librarianPassword))

	bookService := services.NewBookService(store)
	userService := services.NewUserService(store)
	borrowingService := services.NewBorrowingService(store)
	overdueService := services.NewOverdueService(store, services.SystemClock, nil)

	app := fiber.New()
	apiV1 := app.Group("/api/v1")

	// Authentication routes (public)
	handlers.NewAuthHandler(authService).RegisterRoutes(apiV1)

	// Protected routes (require JWT authentication)
	protected := apiV1.Group("", middleware.AuthRequired(authService))
	handlers.NewUserHandler(userService).RegisterRoutes(protected)
	handlers.NewBookHandler(bookService, handlers.StreamConfig{Interval: 10 * time.Millisecond, MaxEvents: 1}, nil).RegisterRoutes(protected)
	handlers.NewBorrowingHandler(borrowingService, overdueService).RegisterRoutes(protected)

	return &testEnv{app: app, store: store, auth: authService}
}

// TestMain runs setup and teardown for all tests
func TestMain(m *testing.M) {
	// Suppress logging during tests for cleaner output
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]string
	decode(t, resp, &out)
	require.NotEmpty(t, out["token"])
	return out["token"]
}

func (e *testEnv) registerPatron(t *testing.T, name string) (string, string) {
	t.Helper()
	email := strings.ToLower(name) + "@example.com"
	resp := e.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name": name, "email": email, "password": "password123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out struct {
		User models.User `json:"user"`
	}
	decode(t, resp, &out)
	return out.User.ID, e.login(t, email, "password123")
}

func (e *testEnv) addBook(t *testing.T, token, isbn string, copies int) models.Book {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/v1/books", token, map[string]interface{}{
		"title": "Dune", "author": "Frank Herbert", "isbn": isbn, "genre": "fiction",
		"publication_date": "1965-08-01", "total_copies": copies,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var book models.Book
	decode(t, resp, &book)
	return book
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var out map[string]interface{}
	decode(t, resp, &out)
	code, _ := out["code"].(string)
	return code
}

func TestAuthRegisterAndLogin(t *testing.T) {
	env := setupApp(t)

	register := map[string]string{"name": "Ada", "email": "ada@example.com", "password": "password123", "phone": "+1 555 0100"}
	resp := env.do(t, http.MethodPost, "/api/v1/auth/register", "", register)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var registerResp map[string]interface{}
	decode(t, resp, &registerResp)
	assert.Equal(t, "User registered successfully", registerResp["message"])
	user := registerResp["user"].(map[string]interface{})
	assert.Equal(t, "PATRON", user["role"])
	assert.NotContains(t, user, "password")

	// Duplicate email
	resp = env.do(t, http.MethodPost, "/api/v1/auth/register", "", register)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "EMAIL_TAKEN", errorCode(t, resp))

	// Invalid payload
	resp = env.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{"name": "X", "email": "nope", "password": "1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name": "Y", "email": "y@example.com", "password": "password123", "phone": "call me",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	token := env.login(t, "ada@example.com", "password123")
	claims, err := env.auth.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, models.RolePatron, claims.Role)

	resp = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "ada@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_CREDENTIALS", errorCode(t, resp))
}

func TestLogoutRevokesToken(t *testing.T) {
	env := setupApp(t)
	_, token := env.registerPatron(t, "Ada")

	resp := env.do(t, http.MethodGet, "/api/v1/users/me", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/api/v1/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/v1/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestProtectedRoutesWithoutAuth(t *testing.T) {
	env := setupApp(t)

	for _, path := range []string{"/api/v1/books", "/api/v1/borrowings/history", "/api/v1/users/me"} {
		resp := env.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		resp.Body.Close()
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/books", nil)
	req.Header.Set("Authorization", "Token abc")
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestBorrowReturnLifecycle(t *testing.T) {
	env := setupApp(t)
	libToken := env.login(t, librarianEmail, librarianPassword)
	_, aToken := env.registerPatron(t, "Alice")
	_, bToken := env.registerPatron(t, "Bob")

	book := env.addBook(t, libToken, "9780441013593", 1)
	assert.Equal(t, 1, book.AvailableCopies)

	// Patrons cannot add books
	resp := env.do(t, http.MethodPost, "/api/v1/books", aToken, map[string]interface{}{
		"title": "X", "author": "Y", "isbn": "1", "genre": "fiction", "publication_date": "2001-01-01", "total_copies": 1,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "NOT_LIBRARIAN", errorCode(t, resp))

	// Librarians cannot borrow
	resp = env.do(t, http.MethodPost, "/api/v1/borrowings", libToken, map[string]string{"book_id": book.ID})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ROLE_NOT_ELIGIBLE", errorCode(t, resp))

	resp = env.do(t, http.MethodPost, "/api/v1/borrowings", aToken, map[string]string{"book_id": book.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var borrowing models.Borrowing
	decode(t, resp, &borrowing)
	assert.Equal(t, models.StatusBorrowed, borrowing.Status)
	assert.Equal(t, 14, models.DaysBetween(borrowing.BorrowDate, borrowing.DueDate))

	resp = env.do(t, http.MethodPost, "/api/v1/borrowings", bToken, map[string]string{"book_id": book.ID})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "BOOK_UNAVAILABLE", errorCode(t, resp))

	resp = env.do(t, http.MethodPost, "/api/v1/borrowings", aToken, map[string]string{"book_id": "missing"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "BOOK_NOT_FOUND", errorCode(t, resp))

	resp = env.do(t, http.MethodPost, "/api/v1/borrowings", aToken, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/api/v1/borrowings/"+borrowing.ID+"/return", bToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "NOT_AUTHORIZED", errorCode(t, resp))

	resp = env.do(t, http.MethodPost, "/api/v1/borrowings/"+borrowing.ID+"/return", aToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var returned models.Borrowing
	decode(t, resp, &returned)
	assert.Equal(t, models.StatusReturned, returned.Status)
	assert.NotNil(t, returned.ReturnDate)

	resp = env.do(t, http.MethodPost, "/api/v1/borrowings/"+borrowing.ID+"/return", aToken, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "ALREADY_RETURNED", errorCode(t, resp))

	resp = env.do(t, http.MethodPost, "/api/v1/borrowings/missing/return", aToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/api/v1/borrowings", bToken, map[string]string{"book_id": book.ID})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/v1/books/"+book.ID, aToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fetched models.Book
	decode(t, resp, &fetched)
	assert.Equal(t, 0, fetched.AvailableCopies)

	// History
	resp = env.do(t, http.MethodGet, "/api/v1/borrowings/history", aToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var mine []models.Borrowing
	decode(t, resp, &mine)
	assert.Len(t, mine, 1)

	resp = env.do(t, http.MethodGet, "/api/v1/borrowings/history/all", aToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/v1/borrowings/history/all", libToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all []models.Borrowing
	decode(t, resp, &all)
	assert.Len(t, all, 2)
}

func TestOverdueEndpoints(t *testing.T) {
	env := setupApp(t)
	libToken := env.login(t, librarianEmail, librarianPassword)
	aliceID, aliceToken := env.registerPatron(t, "Alice")

	resp := env.do(t, http.MethodGet, "/api/v1/borrowings/overdue/report", libToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, services.NoOverdueBooksReport, string(body))
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

	book := env.addBook(t, libToken, "9780441013593", 2)
	today := models.DateOf(time.Now())
	ctx := context.Background()
	require.NoError(t, env.store.Books().AdjustAvailableCopies(ctx, book.ID, -1, 0))
	require.NoError(t, env.store.Borrowings().Create(ctx, &models.Borrowing{
		UserID: aliceID, BookID: book.ID,
		BorrowDate: today.AddDate(0, 0, -17), DueDate: today.AddDate(0, 0, -3),
		Status: models.StatusBorrowed,
	}))

	resp = env.do(t, http.MethodGet, "/api/v1/borrowings/overdue", libToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var overdue []map[string]interface{}
	decode(t, resp, &overdue)
	require.Len(t, overdue, 1)
	assert.EqualValues(t, 3, overdue[0]["overdue_days"])

	assert.Equal(t, aliceID, overdue[0]["user_id"])
	require.Contains(t, overdue[0], "user")

	// another patron sees the overdue book but not who holds it
	_, bobToken := env.registerPatron(t, "Bob")
	resp = env.do(t, http.MethodGet, "/api/v1/borrowings/overdue", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.NotContains(t, string(raw), "alice@example.com")
	assert.NotContains(t, string(raw), aliceID)
	var visible []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &visible))
	require.Len(t, visible, 1)
	assert.Equal(t, book.ID, visible[0]["id"])
	assert.Equal(t, "Dune", visible[0]["title"])
	assert.EqualValues(t, 3, visible[0]["overdue_days"])
	assert.NotContains(t, visible[0], "user")
	assert.NotContains(t, visible[0], "user_id")

	resp = env.do(t, http.MethodGet, "/api/v1/borrowings/overdue/report", libToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "Total Overdue Books: 1")
	assert.Contains(t, string(body), "Dune | Alice | ")
	assert.Contains(t, string(body), "| 3 days | BORROWED")

	resp = env.do(t, http.MethodGet, "/api/v1/borrowings/overdue/report", aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// Alice is blocked until she returns the overdue book
	other := env.addBook(t, libToken, "9780000000001", 1)
	resp = env.do(t, http.MethodPost, "/api/v1/borrowings", aliceToken, map[string]string{"book_id": other.ID})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "HAS_OVERDUE_BOOKS", errorCode(t, resp))
}

func TestBookCatalogEndpoints(t *testing.T) {
	env := setupApp(t)
	libToken := env.login(t, librarianEmail, librarianPassword)
	_, aToken := env.registerPatron(t, "Alice")

	book := env.addBook(t, libToken, "9780441013593", 2)

	resp := env.do(t, http.MethodPost, "/api/v1/books", libToken, map[string]interface{}{
		"title": "Copy", "author": "A", "isbn": "9780441013593", "genre": "fiction", "publication_date": "2001-01-01", "total_copies": 1,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "ISBN_TAKEN", errorCode(t, resp))

	resp = env.do(t, http.MethodPost, "/api/v1/books", libToken, map[string]interface{}{
		"title": "Odd", "author": "A", "isbn": "1", "genre": "poetry", "publication_date": "2001-01-01", "total_copies": 1,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_GENRE", errorCode(t, resp))

	resp = env.do(t, http.MethodGet, "/api/v1/books?title=dun&page=0&size=5", aToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page models.BookPage
	decode(t, resp, &page)
	assert.EqualValues(t, 1, page.Total)
	assert.Equal(t, 5, page.Size)

	resp = env.do(t, http.MethodPost, "/api/v1/borrowings", aToken, map[string]string{"book_id": book.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	update := map[string]interface{}{
		"title": "Dune", "author": "Frank Herbert", "isbn": "9780441013593", "genre": "FICTION", "total_copies": 4,
	}
	resp = env.do(t, http.MethodPut, "/api/v1/books/"+book.ID, libToken, update)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated models.Book
	decode(t, resp, &updated)
	assert.Equal(t, 4, updated.TotalCopies)
	assert.Equal(t, 3, updated.AvailableCopies)

	update["total_copies"] = 0
	resp = env.do(t, http.MethodPut, "/api/v1/books/"+book.ID, libToken, update)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "COPIES_BELOW_ACTIVE_LOANS", errorCode(t, resp))

	resp = env.do(t, http.MethodPut, "/api/v1/books/"+book.ID, libToken, map[string]interface{}{"title": "Dune Messiah"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &updated)
	assert.Equal(t, "Dune Messiah", updated.Title)
	assert.Equal(t, "Frank Herbert", updated.Author)
	assert.Equal(t, 4, updated.TotalCopies)
	assert.Equal(t, 3, updated.AvailableCopies)
	assert.Equal(t, "1965-08-01", updated.PublicationDate.Format("2006-01-02"))

	resp = env.do(t, http.MethodPut, "/api/v1/books/"+book.ID, libToken, map[string]interface{}{"total_copies": -2})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodDelete, "/api/v1/books/"+book.ID, libToken, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "ACTIVE_BORROWINGS_EXIST", errorCode(t, resp))

	idle := env.addBook(t, libToken, "9780000000002", 1)
	resp = env.do(t, http.MethodDelete, "/api/v1/books/"+idle.ID, libToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/v1/books/"+idle.ID, aToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestAvailabilityStream(t *testing.T) {
	env := setupApp(t)
	libToken := env.login(t, librarianEmail, librarianPassword)
	book := env.addBook(t, libToken, "9780441013593", 2)

	resp := env.do(t, http.MethodGet, "/api/v1/books/availability/stream", libToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	text := string(body)
	assert.True(t, strings.HasPrefix(text, "event: availability\ndata: "), text)
	assert.Contains(t, text, `"id":"`+book.ID+`"`)
	assert.Contains(t, text, `"available_copies":2`)
}

func TestUserEndpoints(t *testing.T) {
	env := setupApp(t)
	libToken := env.login(t, librarianEmail, librarianPassword)
	aliceID, aToken := env.registerPatron(t, "Alice")
	bobID, _ := env.registerPatron(t, "Bob")

	resp := env.do(t, http.MethodGet, "/api/v1/users/me", aToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me models.User
	decode(t, resp, &me)
	assert.Equal(t, aliceID, me.ID)

	resp = env.do(t, http.MethodGet, "/api/v1/users/"+bobID, aToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPut, "/api/v1/users/"+aliceID, aToken, map[string]string{"phone": "+44 20 7946 0000"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated models.User
	decode(t, resp, &updated)
	assert.Equal(t, "+44 20 7946 0000", updated.Phone)

	resp = env.do(t, http.MethodPost, "/api/v1/users", libToken, map[string]string{
		"name": "Second", "email": "second@example.com", "password": "password123", "role": "LIBRARIAN",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created models.User
	decode(t, resp, &created)
	assert.Equal(t, models.RoleLibrarian, created.Role)

	resp = env.do(t, http.MethodDelete, "/api/v1/users/"+bobID, aToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodDelete, "/api/v1/users/"+bobID, libToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/v1/users/"+bobID, libToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}
