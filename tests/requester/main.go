package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/handler"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/middleware"
)

var (
	baseURL  = flag.String("url", "http://localhost:8080", "service url")
	secret   = flag.String("secret", "", "jwt secret of the service")
	products = flag.String("products", "", "comma separated product ids")
	users    = flag.Int("users", 5, "number of signed in customers")
)

// Нагружает корзины гостей и покупателей: добавление товара, чтение корзины
// и запрос несуществующего заказа.
func main() {
	flag.Parse()
	if *products == "" {
		fmt.Println("нужен хотя бы один -products")
		return
	}
	ids := strings.Split(*products, ",")

	tokens := make([]string, 0, *users)
	for i := range *users {
		actor := entities.Actor{Role: entities.RoleCustomer, UserID: fmt.Sprintf("load-user-%d", i)}
		token, err := middleware.NewToken(*secret, actor, time.Hour)
		if err != nil {
			fmt.Println("Ошибка токена:", err)
			return
		}
		tokens = append(tokens, token)
	}

	for {
		var wg sync.WaitGroup
		for range rand.Intn(10) {
			wg.Go(func() { doRequest(ids, tokens) })
		}
		wg.Wait()
		time.Sleep(20 * time.Millisecond)
	}
}

func doRequest(ids, tokens []string) {
	header := http.Header{}
	if len(tokens) > 0 && rand.Intn(2) == 0 {
		header.Set("Authorization", "Bearer "+tokens[rand.Intn(len(tokens))])
	} else {
		header.Set(middleware.GuestTokenHeader, fmt.Sprintf("guest-%d", rand.Intn(100)))
	}

	switch rand.Intn(5) {
	case 0:
		send(http.MethodGet, "/orders/"+randomID(12), nil, header)
	case 1, 2:
		body, _ := json.Marshal(handler.AddLineRequest{
			ProductID: ids[rand.Intn(len(ids))],
			Quantity:  rand.Intn(3) + 1,
		})
		send(http.MethodPost, "/cart/lines", body, header)
	default:
		send(http.MethodGet, "/cart", nil, header)
	}
}

func send(method, path string, body []byte, header http.Header) {
	req, err := http.NewRequest(method, *baseURL+path, bytes.NewReader(body))
	if err != nil {
		fmt.Println("Ошибка запроса:", err)
		return
	}
	req.Header = header
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Println("Ошибка запроса:", err)
		return
	}
	fmt.Println(method, path, "->", resp.Status)
	resp.Body.Close()
}

func randomID(length int) string {
	chars := []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")
	id := make([]rune, length)
	for i := range id {
		id[i] = chars[rand.Intn(len(chars))]
	}
	return string(id)
}
