package controllers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	service "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.ApiService/implementation/auth"
	jwt "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.ApiService/implementation/jwt"
	rbac "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.ApiService/implementation/rbac"
	"gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.ApiService/middleware"
	logger "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Logger"
	api_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/api"
	auth_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/auth"
	hardware_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/hardware"
	implementation "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Repository/Implementation"
	interfaces "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Repository/Interfaces"
)

type fakeDevices struct {
	mu      sync.Mutex
	devices []hardware_models.Device
	nextID  int64
}

func (f *fakeDevices) add(d hardware_models.Device) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = append(f.devices, d)
	if d.ID >= f.nextID {
		f.nextID = d.ID
	}
}

func (f *fakeDevices) CreateDevice(_ context.Context, d *hardware_models.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.devices {
		if existing.UserID == d.UserID && existing.Name == d.Name {
			return interfaces.ErrDuplicate
		}
	}
	f.nextID++
	d.ID = f.nextID
	d.CreatedAt = time.Now().UTC()
	f.devices = append(f.devices, *d)
	return nil
}

func (f *fakeDevices) GetDeviceByID(_ context.Context, id int64) (*hardware_models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.devices {
		if d.ID == id {
			found := d
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeDevices) FindDeviceByName(_ context.Context, name string) (*hardware_models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.devices {
		if d.Name == name {
			found := d
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeDevices) ListDevicesByOwner(_ context.Context, userID string) ([]hardware_models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]hardware_models.Device, 0)
	for _, d := range f.devices {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDevices) ListDevices(_ context.Context) ([]hardware_models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]hardware_models.Device{}, f.devices...), nil
}

func (f *fakeDevices) DeleteDevice(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, d := range f.devices {
		if d.ID == id {
			f.devices = append(f.devices[:i], f.devices[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeDevices) owner(id int64) string {
	d, err := f.GetDeviceByID(context.Background(), id)
	if err != nil {
		return ""
	}
	return d.UserID
}

type fakeTemperatures struct {
	mu      sync.Mutex
	devices *fakeDevices
	rows    []hardware_models.Temperature
	listed  []int64
}

func (f *fakeTemperatures) CreateTemperature(_ context.Context, t *hardware_models.Temperature) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ID = int64(len(f.rows) + 1)
	f.rows = append(f.rows, *t)
	return nil
}

func (f *fakeTemperatures) filter(keep func(hardware_models.Temperature) bool) []hardware_models.Temperature {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]hardware_models.Temperature, 0)
	for _, t := range f.rows {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

func (f *fakeTemperatures) ListByDevice(_ context.Context, deviceID int64) ([]hardware_models.Temperature, error) {
	f.mu.Lock()
	f.listed = append(f.listed, deviceID)
	f.mu.Unlock()
	return f.filter(func(t hardware_models.Temperature) bool { return t.DeviceID == deviceID }), nil
}

func (f *fakeTemperatures) ListByOwner(_ context.Context, userID string) ([]hardware_models.Temperature, error) {
	return f.filter(func(t hardware_models.Temperature) bool { return f.devices.owner(t.DeviceID) == userID }), nil
}

func (f *fakeTemperatures) ListAll(_ context.Context) ([]hardware_models.Temperature, error) {
	return f.filter(func(hardware_models.Temperature) bool { return true }), nil
}

func (f *fakeTemperatures) GetLatest(_ context.Context, userID string, deviceID int64) (*hardware_models.Temperature, error) {
	rows := f.filter(func(t hardware_models.Temperature) bool {
		return (userID == "" || f.devices.owner(t.DeviceID) == userID) && (deviceID == 0 || t.DeviceID == deviceID)
	})
	if len(rows) == 0 {
		return nil, sql.ErrNoRows
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Timestamp.Equal(rows[j].Timestamp) {
			return rows[i].ID > rows[j].ID
		}
		return rows[i].Timestamp.After(rows[j].Timestamp)
	})
	return &rows[0], nil
}

type fakePlants struct {
	mu     sync.Mutex
	plants map[int64]hardware_models.Plant
	nextID int64
}

func (f *fakePlants) CreatePlant(_ context.Context, p *hardware_models.Plant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.plants {
		if existing.UserID == p.UserID && existing.Name == p.Name {
			return interfaces.ErrDuplicate
		}
	}
	f.nextID++
	p.ID = f.nextID
	p.CreatedAt = time.Now().UTC()
	f.plants[p.ID] = *p
	return nil
}

func (f *fakePlants) GetPlant(_ context.Context, id int64) (*hardware_models.Plant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plants[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (f *fakePlants) ListPlantsByUser(_ context.Context, userID string) ([]hardware_models.Plant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]hardware_models.Plant, 0)
	for _, p := range f.plants {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakePlants) UpdatePlant(_ context.Context, p *hardware_models.Plant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.plants[p.ID]; !ok {
		return sql.ErrNoRows
	}
	f.plants[p.ID] = *p
	return nil
}

func (f *fakePlants) DeletePlant(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.plants[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.plants, id)
	return nil
}

type fakeSensors struct {
	mu      sync.Mutex
	plants  *fakePlants
	sensors map[int64]hardware_models.Sensor
	nextID  int64
}

func (f *fakeSensors) CreateSensor(ctx context.Context, s *hardware_models.Sensor) error {
	if _, err := f.plants.GetPlant(ctx, s.PlantID); err != nil {
		return interfaces.ErrReferenceMissing
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	s.ID = f.nextID
	f.sensors[s.ID] = *s
	return nil
}

func (f *fakeSensors) GetSensor(_ context.Context, id int64) (*hardware_models.Sensor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sensors[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (f *fakeSensors) ListSensorsByPlant(_ context.Context, plantID int64) ([]hardware_models.Sensor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]hardware_models.Sensor, 0)
	for _, s := range f.sensors {
		if s.PlantID == plantID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeSensors) UpdateSensor(_ context.Context, s *hardware_models.Sensor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sensors[s.ID]; !ok {
		return sql.ErrNoRows
	}
	f.sensors[s.ID] = *s
	return nil
}

func (f *fakeSensors) DeleteSensor(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sensors[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.sensors, id)
	return nil
}

type fakeReadings struct {
	mu   sync.Mutex
	rows []hardware_models.SensorReading
}

func (f *fakeReadings) CreateSensorReading(_ context.Context, r *hardware_models.SensorReading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r.ID = int64(len(f.rows) + 1)
	f.rows = append(f.rows, *r)
	return nil
}

func (f *fakeReadings) ListReadingsBySensor(_ context.Context, sensorID int64) ([]hardware_models.SensorReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]hardware_models.SensorReading, 0)
	for i := len(f.rows) - 1; i >= 0; i-- {
		if f.rows[i].SensorID == sensorID {
			out = append(out, f.rows[i])
		}
	}
	return out, nil
}

type fakeUsers struct {
	mu    sync.Mutex
	users []*auth_models.User
}

func (f *fakeUsers) Create(_ context.Context, u *auth_models.User) (*auth_models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Username == u.Username {
			return nil, interfaces.ErrDuplicate
		}
	}
	if u.UserID == "" {
		u.UserID = uuid.New().String()
	}
	stored := *u
	f.users = append(f.users, &stored)
	return u, nil
}

func (f *fakeUsers) find(match func(*auth_models.User) bool) *auth_models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if match(u) {
			found := *u
			return &found
		}
	}
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*auth_models.User, error) {
	return f.find(func(u *auth_models.User) bool { return u.UserID == id }), nil
}

func (f *fakeUsers) GetByUsername(_ context.Context, name string) (*auth_models.User, error) {
	return f.find(func(u *auth_models.User) bool { return u.Username == name }), nil
}

func (f *fakeUsers) GetByRole(_ context.Context, role string) ([]*auth_models.User, error) {
	all, _ := f.GetAll(context.Background())
	out := make([]*auth_models.User, 0)
	for _, u := range all {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUsers) GetAll(_ context.Context) ([]*auth_models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*auth_models.User, 0, len(f.users))
	for _, u := range f.users {
		copied := *u
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeUsers) Update(_ context.Context, u *auth_models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.users {
		if existing.UserID == u.UserID {
			stored := *u
			f.users[i] = &stored
			return nil
		}
	}
	return sql.ErrNoRows
}

type testEnv struct {
	router   *gin.Engine
	jwt      *jwt.Service
	users    *fakeUsers
	devices  *fakeDevices
	temps    *fakeTemperatures
	plants   *fakePlants
	sensors  *fakeSensors
	readings *fakeReadings
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	devices := &fakeDevices{}
	plants := &fakePlants{plants: make(map[int64]hardware_models.Plant)}
	env := &testEnv{
		router:   gin.New(),
		users:    &fakeUsers{},
		devices:  devices,
		temps:    &fakeTemperatures{devices: devices},
		plants:   plants,
		sensors:  &fakeSensors{plants: plants, sensors: make(map[int64]hardware_models.Sensor)},
		readings: &fakeReadings{},
	}

	env.jwt = jwt.NewService(api_models.Config{
		SecretKey:            "test-secret",
		AccessTokenDuration:  time.Hour,
		RefreshTokenDuration: 2 * time.Hour,
		Issuer:               "temperature-server",
	}, implementation.NewMemoryTokenRepository())

	rbacService := rbac.NewService()
	authorizer := rbac.NewAuthorizer(rbacService)
	authMiddleware := middleware.NewAuthMiddleware(env.jwt, authorizer, middleware.DefaultConfig())
	log := logger.NewNop()

	NewAuthController(service.NewAuthService(env.users, env.jwt, 8), authMiddleware, log, false).RegisterRoutes(env.router)
	NewUserController(service.NewUserService(env.users, rbacService), authMiddleware).RegisterRoutes(env.router)
	NewDeviceController(env.devices, authorizer, log, authMiddleware).RegisterRoutes(env.router)
	NewTemperatureController(env.devices, env.temps, authorizer, log, authMiddleware).RegisterRoutes(env.router)
	NewPlantController(env.plants, env.sensors, authorizer, log, authMiddleware).RegisterRoutes(env.router)
	NewSensorController(env.plants, env.sensors, env.readings, authorizer, log, authMiddleware).RegisterRoutes(env.router)

	return env
}

func (e *testEnv) token(t *testing.T, userID, role string) string {
	t.Helper()
	pair, err := e.jwt.GenerateTokens(userID, userID, role)
	require.NoError(t, err)
	return pair.AccessToken
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), into), w.Body.String())
}

func requireStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, w.Code, "%s %s", http.StatusText(w.Code), w.Body.String())
}
