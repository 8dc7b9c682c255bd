package api

import (
	"context"
	"delivery-dispatch-service/internal/adapters/events"
	"delivery-dispatch-service/internal/api/dto"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/ports"
	"delivery-dispatch-service/internal/services"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testNow = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type testServer struct {
	handler    http.Handler
	dispatcher *services.Dispatcher
}

// newTestServer serves R1(0,0) D1(0,1) D2(1,1) with R1-D1=2, R1-D2=3, D1-D2=1
// and one vehicle V1 of capacity 2 parked at R1.
func newTestServer(t *testing.T, orderRate float64) *testServer {
	t.Helper()
	return newTestServerWith(t, orderRate, nil)
}

// newTestServerWith lets wrap replace the broker the API streams from.
func newTestServerWith(t *testing.T, orderRate float64, wrap func(ports.EventBroker, *services.Dispatcher) ports.EventBroker) *testServer {
	t.Helper()

	g := services.NewLocationGraph(services.NewTrafficModel())
	for _, l := range []domain.Location{
		{ID: "R1", Name: "Kitchen", Coords: domain.Coordinates{Lat: 0, Lon: 0}, Kind: domain.KindRestaurant},
		{ID: "D1", Name: "Customer 1", Coords: domain.Coordinates{Lat: 0, Lon: 1}, Kind: domain.KindCustomer},
		{ID: "D2", Name: "Customer 2", Coords: domain.Coordinates{Lat: 1, Lon: 1}, Kind: domain.KindCustomer},
	} {
		if err := g.AddLocation(l); err != nil {
			t.Fatalf("add location: %v", err)
		}
	}
	for _, e := range []struct {
		a, b string
		km   float64
	}{{"R1", "D1", 2}, {"R1", "D2", 3}, {"D1", "D2", 1}} {
		if err := g.AddRoute(e.a, e.b, e.km); err != nil {
			t.Fatalf("add route: %v", err)
		}
	}

	fleet := services.NewFleet()
	v, err := domain.NewVehicle("V1", 2, "R1")
	if err != nil {
		t.Fatalf("new vehicle: %v", err)
	}
	if err := fleet.Register(v); err != nil {
		t.Fatalf("register: %v", err)
	}
	cache, err := services.NewRecentOrderCache(10, nil)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}

	broker := events.NewBroker()
	finder := services.NewPathFinder(g)
	optimizer := services.NewRouteOptimizer(finder)
	now := func() time.Time { return testNow }

	menu := services.NewMenuSearchIndex(5)
	menu.Insert(ports.MenuItem{ID: "m1", Name: "Pepperoni Pizza", Frequency: 3})
	menu.Insert(ports.MenuItem{ID: "m2", Name: "Pad Thai", Frequency: 5})
	menu.Insert(ports.MenuItem{ID: "m3", Name: "Caesar Salad", Frequency: 1})

	d := &services.Dispatcher{
		Scheduler: services.NewOrderScheduler(),
		Fleet:     fleet,
		Assigner:  services.NewDispatchAssigner(optimizer, 2),
		Tracker:   services.NewTracker(fleet, services.TrackerOptions{Events: broker, Now: now}),
		Cache:     cache,
		Menu:      menu,
		Now:       now,
	}
	t.Cleanup(d.Tracker.Stop)

	var streams ports.EventBroker = broker
	if wrap != nil {
		streams = wrap(broker, d)
	}

	h := NewRouter(Deps{
		Graph:          g,
		Finder:         finder,
		Optimizer:      optimizer,
		Dispatcher:     d,
		Menu:           menu,
		Broker:         streams,
		OrderRateLimit: orderRate,
		OrderRateBurst: 1,
		Now:            now,
	})
	return &testServer{handler: h, dispatcher: d}
}

func (s *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, 0)

	rr := s.do(t, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := decode[map[string]string](t, rr); got["status"] != "ok" {
		t.Fatalf("unexpected body: %v", got)
	}
}

func TestShortestPath(t *testing.T) {
	s := newTestServer(t, 0)

	for _, algo := range []string{"dijkstra", "astar"} {
		rr := s.do(t, http.MethodGet, "/v1/routes/shortest?from=R1&to=D2&algo="+algo, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", algo, rr.Code, rr.Body.String())
		}
		res := decode[dto.ShortestPathResponse](t, rr)
		if strings.Join(res.Path, ",") != "R1,D1,D2" || res.DistanceKm != 3 {
			t.Fatalf("%s: got %v %.2f", algo, res.Path, res.DistanceKm)
		}
	}

	if rr := s.do(t, http.MethodGet, "/v1/routes/shortest?from=R1&to=NOPE", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown location: expected 404, got %d", rr.Code)
	}
	if rr := s.do(t, http.MethodGet, "/v1/routes/shortest?from=R1", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("missing to: expected 400, got %d", rr.Code)
	}
	if rr := s.do(t, http.MethodGet, "/v1/routes/shortest?from=R1&to=D1&algo=bfs", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad algo: expected 400, got %d", rr.Code)
	}
}

func TestOptimizeRoute(t *testing.T) {
	s := newTestServer(t, 0)

	body := `{"start":"R1","stops":[{"order_id":"a","location_id":"D2"},{"order_id":"b","location_id":"D1"}],"return_to_start":false}`
	rr := s.do(t, http.MethodPost, "/v1/routes/optimize", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	res := decode[dto.RouteResponse](t, rr)
	if len(res.Stops) != 2 || res.Stops[0].LocationID != "D1" || res.Stops[1].LocationID != "D2" {
		t.Fatalf("unexpected stops: %+v", res.Stops)
	}
	if res.TotalDistanceKm != 3 || res.ReturnToStart {
		t.Fatalf("unexpected route: %+v", res)
	}

	if rr := s.do(t, http.MethodPost, "/v1/routes/optimize", `{"start":"R1","stops":[{"location_id":"X"}]}`); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown stop: expected 404, got %d", rr.Code)
	}
	if rr := s.do(t, http.MethodPost, "/v1/routes/optimize", `{"start":"R1","stops":[],"extra":1}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: expected 400, got %d", rr.Code)
	}
}

func TestUpdateTraffic(t *testing.T) {
	s := newTestServer(t, 0)

	rr := s.do(t, http.MethodPost, "/v1/traffic", `{"from":"D1","to":"R1","level":"heavy"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	res := decode[dto.TrafficResponse](t, rr)
	if res.EdgeKey != "D1|R1" || res.Multiplier != 2 {
		t.Fatalf("unexpected traffic: %+v", res)
	}

	// R1-D1-D2 now weighs 5 so the direct edge wins.
	rr = s.do(t, http.MethodGet, "/v1/routes/shortest?from=R1&to=D2", "")
	if got := decode[dto.ShortestPathResponse](t, rr); strings.Join(got.Path, ",") != "R1,D2" {
		t.Fatalf("path after traffic = %v", got.Path)
	}

	if rr := s.do(t, http.MethodPost, "/v1/traffic", `{"from":"D1","to":"R1","level":"jammed"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad level: expected 400, got %d", rr.Code)
	}
	if rr := s.do(t, http.MethodPost, "/v1/traffic", `{"from":"D1","to":"NOPE","level":"light"}`); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown edge: expected 404, got %d", rr.Code)
	}
}

func TestOrderLifecycle(t *testing.T) {
	s := newTestServer(t, 0)

	if rr := s.do(t, http.MethodGet, "/v1/queue/next", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("empty queue: expected 204, got %d", rr.Code)
	}

	rr := s.do(t, http.MethodPost, "/v1/orders",
		`{"id":"o1","delivery_location_id":"D2","total":120,"payment_method":"card","items":[{"id":"m1","name":"Pepperoni Pizza","unit_price":12,"quantity":10}]}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("submit: expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	if sub := decode[dto.SubmitOrderResponse](t, rr); sub.OrderID != "o1" || sub.Priority != -4 {
		t.Fatalf("unexpected submit response: %+v", sub)
	}

	if rr := s.do(t, http.MethodPost, "/v1/orders", `{"id":"o9","delivery_location_id":"NOPE"}`); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown location: expected 404, got %d", rr.Code)
	}
	if rr := s.do(t, http.MethodPost, "/v1/orders", `{"delivery_location_id":"D1"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("missing id: expected 400, got %d", rr.Code)
	}

	rr = s.do(t, http.MethodGet, "/v1/queue/next", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("next: expected 200, got %d", rr.Code)
	}
	if next := decode[dto.QueueNextResponse](t, rr); next.Order.ID != "o1" {
		t.Fatalf("next = %+v", next)
	}

	rr = s.do(t, http.MethodGet, "/v1/orders/o1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get order: expected 200, got %d", rr.Code)
	}
	if o := decode[dto.OrderResponse](t, rr); o.PaymentMethod != "card" || o.Status != "pending" {
		t.Fatalf("order = %+v", o)
	}
	if rr := s.do(t, http.MethodGet, "/v1/orders/missing", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("missing order: expected 404, got %d", rr.Code)
	}

	rr = s.do(t, http.MethodPost, "/v1/dispatch", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("dispatch: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	batch := decode[dto.DispatchResponse](t, rr)
	if len(batch.Routes) != 1 || batch.Routes[0].VehicleID != "V1" || len(batch.Unassigned) != 0 {
		t.Fatalf("batch = %+v", batch)
	}

	rr = s.do(t, http.MethodGet, "/v1/deliveries/DEL-o1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get delivery: expected 200, got %d", rr.Code)
	}
	if del := decode[dto.DeliveryResponse](t, rr); del.Status != "pending" || del.VehicleID != "V1" {
		t.Fatalf("delivery = %+v", del)
	}

	if rr := s.do(t, http.MethodPost, "/v1/deliveries/DEL-o1/advance", `{"status":"delivered"}`); rr.Code != http.StatusConflict {
		t.Fatalf("skip ahead: expected 409, got %d", rr.Code)
	}
	for _, st := range []string{"confirmed", "preparing"} {
		rr := s.do(t, http.MethodPost, "/v1/deliveries/DEL-o1/advance", `{"status":"`+st+`"}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("advance %s: expected 200, got %d: %s", st, rr.Code, rr.Body.String())
		}
	}

	rr = s.do(t, http.MethodPost, "/v1/deliveries/DEL-o1/delays", `{"minutes":10,"reason":"rain"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("delay: expected 200, got %d", rr.Code)
	}
	if del := decode[dto.DeliveryResponse](t, rr); len(del.Delays) != 1 || del.Delays[0].Minutes != 10 {
		t.Fatalf("delays = %+v", del.Delays)
	}
	if rr := s.do(t, http.MethodPost, "/v1/deliveries/DEL-o1/delays", `{"minutes":0}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("zero delay: expected 400, got %d", rr.Code)
	}

	// Customers can no longer cancel once the kitchen is preparing.
	if rr := s.do(t, http.MethodPost, "/v1/orders/o1/cancel", ""); rr.Code != http.StatusConflict {
		t.Fatalf("customer cancel: expected 409, got %d", rr.Code)
	}

	rr = s.do(t, http.MethodPost, "/v1/deliveries/DEL-o1/cancel", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("operator cancel: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if del := decode[dto.DeliveryResponse](t, rr); del.Status != "cancelled" {
		t.Fatalf("delivery after cancel = %+v", del)
	}
	if rr := s.do(t, http.MethodPost, "/v1/deliveries/DEL-o1/cancel", ""); rr.Code != http.StatusConflict {
		t.Fatalf("second cancel: expected 409, got %d", rr.Code)
	}
	if rr := s.do(t, http.MethodGet, "/v1/deliveries/DEL-missing", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("missing delivery: expected 404, got %d", rr.Code)
	}
}

func TestCustomerCancelQueuedOrder(t *testing.T) {
	s := newTestServer(t, 0)

	if rr := s.do(t, http.MethodPost, "/v1/orders", `{"id":"o1","delivery_location_id":"D1"}`); rr.Code != http.StatusAccepted {
		t.Fatalf("submit: expected 202, got %d", rr.Code)
	}
	if rr := s.do(t, http.MethodPost, "/v1/orders/o1/cancel", ""); rr.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr := s.do(t, http.MethodGet, "/v1/queue/next", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("queue should be empty, got %d", rr.Code)
	}

	rr := s.do(t, http.MethodGet, "/v1/orders/recent?limit=5", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("recent: expected 200, got %d", rr.Code)
	}
	if list := decode[dto.ListOrdersResponse](t, rr); len(list.Orders) != 1 || list.Orders[0].Status != "cancelled" {
		t.Fatalf("recent = %+v", list.Orders)
	}
	if rr := s.do(t, http.MethodGet, "/v1/orders/recent?limit=zero", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: expected 400, got %d", rr.Code)
	}
}

func TestMenuSearch(t *testing.T) {
	s := newTestServer(t, 0)

	rr := s.do(t, http.MethodGet, "/v1/menu/search?q=p", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	res := decode[dto.MenuSearchResponse](t, rr)
	if len(res.Suggestions) != 2 || res.Suggestions[0].ID != "m2" || res.Suggestions[1].ID != "m1" {
		t.Fatalf("suggestions = %+v", res.Suggestions)
	}
}

func TestOrderIntakeRateLimited(t *testing.T) {
	s := newTestServer(t, 0.001)

	if rr := s.do(t, http.MethodPost, "/v1/orders", `{"id":"o1","delivery_location_id":"D1"}`); rr.Code != http.StatusAccepted {
		t.Fatalf("first submit: expected 202, got %d", rr.Code)
	}
	if rr := s.do(t, http.MethodPost, "/v1/orders", `{"id":"o2","delivery_location_id":"D1"}`); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second submit: expected 429, got %d", rr.Code)
	}
	// Other routes are not limited.
	if rr := s.do(t, http.MethodGet, "/v1/queue/next", ""); rr.Code != http.StatusOK {
		t.Fatalf("next: expected 200, got %d", rr.Code)
	}
}

func TestDeliveryStream(t *testing.T) {
	s := newTestServer(t, 0)
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	if rr := s.do(t, http.MethodPost, "/v1/orders", `{"id":"o1","delivery_location_id":"D1"}`); rr.Code != http.StatusAccepted {
		t.Fatalf("submit: expected 202, got %d", rr.Code)
	}
	if rr := s.do(t, http.MethodPost, "/v1/dispatch", ""); rr.Code != http.StatusOK {
		t.Fatalf("dispatch: expected 200, got %d", rr.Code)
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/deliveries/DEL-o1/ws"
	if _, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/deliveries/DEL-nope/ws", nil); err == nil {
		t.Fatalf("expected dial to unknown delivery to fail")
	} else if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown delivery, got %v", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snap ports.DeliveryEvent
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snap.Type != "delivery.snapshot" || snap.DeliveryID != "DEL-o1" {
		t.Fatalf("snapshot = %+v", snap)
	}

	if rr := s.do(t, http.MethodPost, "/v1/deliveries/DEL-o1/cancel", ""); rr.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", rr.Code)
	}

	for {
		var evt ports.DeliveryEvent
		if err := conn.ReadJSON(&evt); err != nil {
			t.Fatalf("stream ended before cancellation event: %v", err)
		}
		if evt.Type == services.EventDeliveryStatus && evt.Data["status"] == "cancelled" {
			break
		}
	}

	var evt ports.DeliveryEvent
	err = conn.ReadJSON(&evt)
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal closure after terminal status, got %v", err)
	}
}

// slowSubscriber calls before ahead of each subscription.
type slowSubscriber struct {
	ports.EventBroker
	before func(deliveryID string)
}

func (b *slowSubscriber) Subscribe(deliveryID string) chan ports.DeliveryEvent {
	b.before(deliveryID)
	return b.EventBroker.Subscribe(deliveryID)
}

func TestDeliveryStreamClosesOnTransitionDuringSubscribe(t *testing.T) {
	var once sync.Once
	s := newTestServerWith(t, 0, func(b ports.EventBroker, d *services.Dispatcher) ports.EventBroker {
		return &slowSubscriber{EventBroker: b, before: func(id string) {
			once.Do(func() { _, _ = d.Tracker.Cancel(context.Background(), id) })
		}}
	})
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	if rr := s.do(t, http.MethodPost, "/v1/orders", `{"id":"o1","delivery_location_id":"D1"}`); rr.Code != http.StatusAccepted {
		t.Fatalf("submit: expected 202, got %d", rr.Code)
	}
	if rr := s.do(t, http.MethodPost, "/v1/dispatch", ""); rr.Code != http.StatusOK {
		t.Fatalf("dispatch: expected 200, got %d", rr.Code)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/deliveries/DEL-o1/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snap struct {
		Type string `json:"type"`
		Data struct {
			Delivery dto.DeliveryResponse `json:"delivery"`
		} `json:"data"`
	}
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snap.Data.Delivery.Status != string(domain.StatusCancelled) {
		t.Fatalf("snapshot status = %q, want cancelled", snap.Data.Delivery.Status)
	}

	var evt ports.DeliveryEvent
	if err := conn.ReadJSON(&evt); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal closure after terminal snapshot, got %v", err)
	}
}
