package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Hub 维护活跃的客户端集合并向客户端广播价格消息
type Hub struct {
	// 注册的客户端
	clients map[*Client]bool

	// 出站广播消息
	broadcast chan []byte

	// 来自客户端的注册请求
	register chan *Client

	// 来自客户端的注销请求
	unregister chan *Client

	clientsMutex sync.RWMutex
}

// Client 表示单个WebSocket客户端
type Client struct {
	hub *Hub

	// WebSocket连接
	conn *websocket.Conn

	// 出站消息的缓冲通道
	send chan []byte

	// 客户端唯一标识
	id string

	// 最后活跃时间
	lastActivity time.Time

	closed     bool
	closeMutex sync.Mutex
}

// Message 表示WebSocket消息格式
type Message struct {
	Type      string      `json:"type"`      // message, ping, pong
	DataType  string      `json:"dataType"`  // prices, system
	Data      interface{} `json:"data"`      // 实际数据
	Timestamp int64       `json:"timestamp"` // 时间戳
}

const (
	// 消息类型
	MessageTypeMessage = "message"
	MessageTypePing    = "ping"
	MessageTypePong    = "pong"

	// 数据类型
	DataTypePrices = "prices"
	DataTypeSystem = "system"

	// 时间常量
	writeWait      = 10 * time.Second    // 写入等待时间
	pongWait       = 60 * time.Second    // Pong等待时间
	pingPeriod     = (pongWait * 9) / 10 // Ping发送周期
	maxMessageSize = 512                 // 最大消息大小
)

// NewHub 创建新的Hub
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Run 启动Hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clientsMutex.Lock()
			h.clients[client] = true
			h.clientsMutex.Unlock()
			logrus.WithField("clientId", client.id).Info("客户端已连接")

			// 发送欢迎消息
			welcome := Message{
				Type:      MessageTypeMessage,
				DataType:  DataTypeSystem,
				Data:      map[string]string{"status": "connected", "clientId": client.id},
				Timestamp: time.Now().UnixMilli(),
			}
			if data, err := json.Marshal(welcome); err == nil {
				select {
				case client.send <- data:
				default:
				}
			}

		case client := <-h.unregister:
			h.clientsMutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.safeClose()
				logrus.WithField("clientId", client.id).Info("客户端已断开")
			}
			h.clientsMutex.Unlock()

		case message := <-h.broadcast:
			h.clientsMutex.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					client.safeClose()
					delete(h.clients, client)
				}
			}
			h.clientsMutex.Unlock()
		}
	}
}

// Broadcast 向所有客户端广播一条消息
func (h *Hub) Broadcast(dataType string, data interface{}) {
	msg := Message{
		Type:      MessageTypeMessage,
		DataType:  dataType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		logrus.Errorf("序列化广播消息失败: %v", err)
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		logrus.Warn("广播队列已满，丢弃消息")
	}
}

// ClientCount 当前连接的客户端数
func (h *Hub) ClientCount() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

func (c *Client) safeClose() {
	c.closeMutex.Lock()
	defer c.closeMutex.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// NewClient 创建客户端
func NewClient(hub *Hub, conn *websocket.Conn, id string) *Client {
	return &Client{
		hub:          hub,
		conn:         conn,
		send:         make(chan []byte, 64),
		id:           id,
		lastActivity: time.Now(),
	}
}

// StartClient 启动客户端读写协程
func (c *Client) StartClient() {
	go c.writePump()
	go c.readPump()
}

// readPump 处理来自WebSocket连接的读取操作
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		c.lastActivity = time.Now()
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageData, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Errorf("WebSocket错误: %v", err)
			}
			break
		}

		c.lastActivity = time.Now()

		var msg Message
		if err := json.Unmarshal(messageData, &msg); err != nil {
			logrus.Debugf("忽略无法解析的WebSocket消息: %v", err)
			continue
		}

		// 客户端只会发心跳
		if msg.Type == MessageTypePing {
			pong := Message{
				Type:      MessageTypePong,
				Timestamp: time.Now().UnixMilli(),
			}
			if data, err := json.Marshal(pong); err == nil {
				select {
				case c.send <- data:
				default:
				}
			}
		}
	}
}

// writePump 处理向WebSocket连接的写入操作
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// 添加队列中的其他消息
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
