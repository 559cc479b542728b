package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

// ---------- helpers ----------

type testServer struct {
	srv   *httptest.Server
	wsURL string
	lobby *Lobby
	hub   *Hub
	db    *DB
}

// startTestServer wires lobby, hub, auth and journal db behind an
// httptest.Server
func startTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t)

	lobby, err := NewLobby(log, NewCatalog(), []GameEntry{{ID: 1, Name: "One"}, {ID: 2, Name: "Two"}},
		GameConfig{TickRate: 100, CheckInvariants: true},
		func(GameEntry) MapSource { return StaticMapSource{Data: testMap(12, 12)} }, nil)
	if err != nil {
		t.Fatal(err)
	}
	lobby.Start(context.Background())

	hash, _ := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	auth, err := NewAuth(AdminConfig{Username: "admin", PasswordHash: string(hash)})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	hub := NewHub(log, lobby, WSConfig{
		SendBuffer:        64,
		MaxMessageSize:    4096,
		MaxMessagesPerSec: 100,
		MaxConnsPerIP:     10,
		MaxTotalConns:     100,
	})
	go hub.Run(done)

	db := openTestDB(t)
	srv := httptest.NewServer(SetupRoutes(&Server{log: log, hub: hub, lobby: lobby, auth: auth, db: db}))
	t.Cleanup(func() {
		srv.Close()
		close(done)
		lobby.Stop()
	})

	for _, id := range []int{1, 2} {
		g, _ := lobby.Game(id)
		waitFor(t, "map", g.MapReady)
	}
	return &testServer{
		srv:   srv,
		wsURL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		lobby: lobby,
		hub:   hub,
		db:    db,
	}
}

// dialWS opens a WebSocket connection to the test server.
func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// sendMsg writes one JSON message frame
func sendMsg(t *testing.T, conn *websocket.Conn, msg ...any) {
	t.Helper()
	raw, _ := json.Marshal(msg)
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write WS: %v", err)
	}
}

// readBatch reads one frame and decodes it as a message batch
func readBatch(t *testing.T, conn *websocket.Conn) []Payload {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read WS: %v", err)
	}
	var batch []Payload
	if msgType == websocket.BinaryMessage {
		err = msgpack.Unmarshal(raw, &batch)
	} else {
		err = json.Unmarshal(raw, &batch)
	}
	if err != nil {
		t.Fatalf("decode batch %q: %v", raw, err)
	}
	return batch
}

// expectOp reads frames until a message with op arrives
func expectOp(t *testing.T, conn *websocket.Conn, op Opcode) Payload {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, msg := range readBatch(t, conn) {
			if msg.Opcode() == op {
				return msg
			}
		}
	}
	t.Fatalf("no message with opcode %d", op)
	return nil
}

// helloAndConnect greets the server, joins game and returns the player id
func helloAndConnect(t *testing.T, conn *websocket.Conn, name string, game int) int64 {
	t.Helper()
	sendMsg(t, conn, MsgHello, name)
	welcome := expectOp(t, conn, MsgWelcome)
	id, ok := asInt(welcome[1])
	if !ok || id <= 0 {
		t.Fatalf("bad welcome %v", welcome)
	}
	if welcome[2] != name {
		t.Errorf("welcome name = %v", welcome[2])
	}

	sendMsg(t, conn, MsgConnect, game)
	data := expectOp(t, conn, MsgGameData)
	if gid, _ := asInt(data[1]); int(gid) != game {
		t.Errorf("GAMEDATA for game %v", data[1])
	}
	return id
}

func getJSON(t *testing.T, url, token string, out any) int {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func adminLogin(t *testing.T, base, user, pass string) (string, int) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": user, "password": pass})
	resp, err := http.Post(base+"/admin/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out struct {
		Token string `json:"token"`
	}
	json.NewDecoder(resp.Body).Decode(&out)
	return out.Token, resp.StatusCode
}

// ---------- tests ----------

func TestHelloListsGames(t *testing.T) {
	ts := startTestServer(t)
	conn := dialWS(t, ts.wsURL)

	sendMsg(t, conn, MsgHello, "ace")
	batch := readBatch(t, conn)
	if len(batch) != 2 || batch[0].Opcode() != MsgWelcome || batch[1].Opcode() != MsgHello {
		t.Fatalf("expected WELCOME+HELLO in one frame, got %v", batch)
	}
	games, ok := batch[1][1].([]any)
	if !ok || len(games) != 2 {
		t.Fatalf("game list = %v", batch[1][1])
	}
	first := games[0].([]any)
	if id, _ := asInt(first[0]); id != 1 || first[1] != "One" {
		t.Errorf("first game = %v", first)
	}
}

func TestFullMatchFlow(t *testing.T) {
	ts := startTestServer(t)
	a := dialWS(t, ts.wsURL)
	b := dialWS(t, ts.wsURL)

	idA := helloAndConnect(t, a, "alpha", 1)
	idB := helloAndConnect(t, b, "bravo", 1)
	if idA == idB {
		t.Fatal("players share an id")
	}
	joined := expectOp(t, a, MsgJoinGame)
	if id, _ := asInt(joined[1]); id != idB {
		t.Errorf("JOINGAME for %v, want %d", joined[1], idB)
	}

	sendMsg(t, a, MsgIReady)
	sendMsg(t, b, MsgIReady)
	expectOp(t, a, MsgGameStart)
	expectOp(t, b, MsgGameStart)

	sendMsg(t, a, MsgLoadMap)
	sendMsg(t, b, MsgLoadMap)
	expectOp(t, a, MsgGamePlay)
	expectOp(t, b, MsgGamePlay)

	g, _ := ts.lobby.Game(1)
	if g.Phase() != PhasePlaying {
		t.Fatalf("phase = %s", g.Phase())
	}

	sendMsg(t, a, MsgMove, OrientRight)
	move := expectOp(t, b, MsgMove)
	if id, _ := asInt(move[1]); id != idA {
		t.Errorf("MOVE for %v, want %d", move[1], idA)
	}
	sendMsg(t, a, MsgEndMove)
	expectOp(t, b, MsgEndMove)

	sendMsg(t, b, MsgChat, "gg")
	chat := expectOp(t, a, MsgChat)
	if chat[2] != "gg" {
		t.Errorf("chat = %v", chat)
	}

	sendMsg(t, b, MsgSendMap)
	m := expectOp(t, b, MsgSendMap)
	if w, _ := asInt(m[1]); w != 12 {
		t.Errorf("SENDMAP width %v", m[1])
	}

	b.Close()
	left := expectOp(t, a, MsgLeftGame)
	if id, _ := asInt(left[1]); id != idB {
		t.Errorf("LEFTGAME for %v, want %d", left[1], idB)
	}
}

func TestConnectAfterStartRefused(t *testing.T) {
	ts := startTestServer(t)
	a := dialWS(t, ts.wsURL)
	b := dialWS(t, ts.wsURL)
	helloAndConnect(t, a, "alpha", 2)
	helloAndConnect(t, b, "bravo", 2)
	sendMsg(t, a, MsgIReady)
	sendMsg(t, b, MsgIReady)
	expectOp(t, a, MsgGameStart)

	late := dialWS(t, ts.wsURL)
	sendMsg(t, late, MsgHello, "late")
	expectOp(t, late, MsgWelcome)
	sendMsg(t, late, MsgConnect, 2)
	full := expectOp(t, late, MsgGameFull)
	if r, _ := asInt(full[2]); r != FullReasonUnavailable {
		t.Errorf("GAMEFULL reason %v", full[2])
	}

	sendMsg(t, late, MsgConnect, 99)
	full = expectOp(t, late, MsgGameFull)
	if gid, _ := asInt(full[1]); gid != 99 {
		t.Errorf("GAMEFULL for %v", full[1])
	}
}

func TestMsgpackEncoding(t *testing.T) {
	ts := startTestServer(t)
	conn := dialWS(t, ts.wsURL+"?enc=msgpack")

	raw, err := msgpack.Marshal([]any{int(MsgHello), "mp"})
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, raw); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, _, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if msgType != websocket.BinaryMessage {
		t.Errorf("expected binary frame, got %d", msgType)
	}
}

func TestMalformedMessagesIgnored(t *testing.T) {
	ts := startTestServer(t)
	conn := dialWS(t, ts.wsURL)

	conn.WriteMessage(websocket.TextMessage, []byte("not json"))
	sendMsg(t, conn, "bogus")
	sendMsg(t, conn, MsgIReady) // no game yet
	sendMsg(t, conn, MsgHello, "still here")
	expectOp(t, conn, MsgWelcome)
}

func TestHTTPEndpoints(t *testing.T) {
	ts := startTestServer(t)

	var health map[string]any
	if code := getJSON(t, ts.srv.URL+"/healthz", "", &health); code != http.StatusOK || health["status"] != "ok" {
		t.Errorf("healthz %d %v", code, health)
	}

	var games []GameInfo
	if code := getJSON(t, ts.srv.URL+"/games", "", &games); code != http.StatusOK {
		t.Fatalf("games status %d", code)
	}
	if len(games) != 2 || games[0].MaxPlayers != 4 || games[0].Phase != "lobby" {
		t.Errorf("games = %+v", games)
	}

	resp, err := http.Get(ts.srv.URL + "/games/1/qr")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Errorf("qr: %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if code := getJSON(t, ts.srv.URL+"/games/9/qr", "", nil); code != http.StatusNotFound {
		t.Errorf("qr for missing game: %d", code)
	}
	if code := getJSON(t, ts.srv.URL+"/games/x/qr", "", nil); code != http.StatusBadRequest {
		t.Errorf("qr for bad id: %d", code)
	}
}

func TestAdminAPI(t *testing.T) {
	ts := startTestServer(t)

	if _, code := adminLogin(t, ts.srv.URL, "admin", "nope"); code != http.StatusUnauthorized {
		t.Errorf("bad login status %d", code)
	}
	token, code := adminLogin(t, ts.srv.URL, "admin", "hunter2")
	if code != http.StatusOK || token == "" {
		t.Fatalf("login status %d", code)
	}

	if code := getJSON(t, ts.srv.URL+"/admin/games/1", "", nil); code != http.StatusUnauthorized {
		t.Errorf("no token: %d", code)
	}
	if code := getJSON(t, ts.srv.URL+"/admin/games/1", "garbage", nil); code != http.StatusUnauthorized {
		t.Errorf("bad token: %d", code)
	}

	var detail struct {
		Game     GameInfo         `json:"game"`
		MapReady bool             `json:"map_ready"`
		Metrics  map[string]any   `json:"metrics"`
	}
	if code := getJSON(t, ts.srv.URL+"/admin/games/1", token, &detail); code != http.StatusOK {
		t.Fatalf("admin game status %d", code)
	}
	if detail.Game.ID != 1 || !detail.MapReady {
		t.Errorf("detail = %+v", detail)
	}
	if _, ok := detail.Metrics["tick_count"]; !ok {
		t.Errorf("metrics = %v", detail.Metrics)
	}

	err := ts.db.InsertEvents([]JournalEvent{
		{Type: EvtPlayerJoin, GameID: 1, PlayerID: 3, At: time.Now()},
		{Type: EvtPlayerJoin, GameID: 2, PlayerID: 4, At: time.Now()},
	})
	if err != nil {
		t.Fatal(err)
	}
	var events []JournalEvent
	if code := getJSON(t, ts.srv.URL+"/admin/events?game=2", token, &events); code != http.StatusOK {
		t.Fatalf("events status %d", code)
	}
	if len(events) != 1 || events[0].PlayerID != 4 {
		t.Errorf("events = %+v", events)
	}
}
