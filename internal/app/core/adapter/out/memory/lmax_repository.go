package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-wallet-ledger/pkg/wal"
)

// ErrRepositoryClosed 寫入執行緒已停止
var ErrRepositoryClosed = errors.New("memory: repository closed")

// commitRequest 提交請求包裝 channel，讓 Save/Create 可以等待結果
type commitRequest struct {
	Create   bool
	Accounts []*domain.Account
	Result   chan error // 讓 Save 等這個 channel
}

// LMAXRepository 單一寫入執行緒的帳戶儲存
// 所有提交排隊進入同一個 goroutine 依序處理，讀取只在套用時短暫等待
type LMAXRepository struct {
	store *store
	// 只保護 store 的讀取與套用，版本檢查與 WAL 由寫入執行緒獨自進行
	mu  sync.RWMutex
	wal *wal.WAL
	// 輸送帶 負責接收提交
	commitChan chan *commitRequest
	// Pool 減少 GC 壓力
	requestPool sync.Pool
	done        chan struct{}
}

// NewLMAXRepository 建立一個新的 LMAXRepository 實例，需呼叫 Start 才會開始處理提交
//
// 參數:
//
//	wal: Write-Ahead Log 實例，可為 nil
//	buffer: 輸送帶長度
//
// 回傳:
//
//	*LMAXRepository: LMAXRepository 實例
//	error: 初始化錯誤 (如 WAL 恢復失敗)
func NewLMAXRepository(wal *wal.WAL, buffer int) (*LMAXRepository, error) {
	if buffer <= 0 {
		buffer = 1000
	}
	repo := &LMAXRepository{
		store:      newStore(),
		wal:        wal,
		commitChan: make(chan *commitRequest, buffer),
		requestPool: sync.Pool{
			New: func() interface{} {
				return &commitRequest{
					Result: make(chan error, 1),
				}
			},
		},
		done: make(chan struct{}),
	}

	// 在啟動前先恢復資料
	if err := repo.store.recover(wal); err != nil {
		return nil, err
	}
	return repo, nil
}

// Start 啟動寫入執行緒 (非同步)，ctx 結束後把剩下的提交處理完才停止
func (l *LMAXRepository) Start(ctx context.Context) {
	go l.run(ctx)
}

// Done 寫入執行緒結束後關閉
func (l *LMAXRepository) Done() <-chan struct{} {
	return l.done
}

func (l *LMAXRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.get(id)
}

func (l *LMAXRepository) GetByPhone(ctx context.Context, phone string) (*domain.Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.getByPhone(phone)
}

// Create 新增帳戶
func (l *LMAXRepository) Create(ctx context.Context, account *domain.Account) error {
	return l.submit(ctx, true, []*domain.Account{account})
}

// Save 以單一原子單位寫回一個或多個帳戶
//
// Save(等待) -> Channel -> Run Loop (核心) -> WAL -> Map Update -> Result Channel -> Save(收到結果)
func (l *LMAXRepository) Save(ctx context.Context, accounts ...*domain.Account) error {
	return l.submit(ctx, false, accounts)
}

func (l *LMAXRepository) submit(ctx context.Context, create bool, accounts []*domain.Account) error {
	select {
	case <-l.done:
		return ErrRepositoryClosed
	default:
	}

	// 1. 放入輸送帶 (使用 sync.Pool 減少 GC)
	req := l.requestPool.Get().(*commitRequest)
	req.Create = create
	req.Accounts = accounts
	select {
	case <-req.Result:
	default:
	}

	select {
	case l.commitChan <- req:
	case <-l.done:
		return ErrRepositoryClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	// 進了輸送帶後不看 ctx，一定要等到結果
	select {
	case err := <-req.Result:
		req.Accounts = nil
		l.requestPool.Put(req)
		return err
	case <-l.done:
		// writer 在 close(done) 前會送出結果；拿不到代表這筆留在輸送帶上沒被處理
		select {
		case err := <-req.Result:
			return err
		default:
			return ErrRepositoryClosed
		}
	}
}

func (l *LMAXRepository) run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			// 收到關閉信號，把剩下的提交處理完
			l.drain()
			return
		case req := <-l.commitChan:
			l.process(req)
		}
	}
}

func (l *LMAXRepository) drain() {
	for {
		select {
		case req := <-l.commitChan:
			l.process(req)
		default:
			return
		}
	}
}

// process 處理單筆提交並回傳結果
func (l *LMAXRepository) process(req *commitRequest) {
	// 0. 版本檢查 (只有這個 goroutine 會修改 store，不需要鎖)
	var (
		rec *walRecord
		err error
	)
	if req.Create {
		rec, err = l.store.prepareCreate(req.Accounts[0])
	} else {
		rec, err = l.store.prepareSave(req.Accounts)
	}
	if err != nil {
		req.Result <- err
		return
	}

	// 1. 寫入 WAL (Critical Path)
	err = persist(l.wal, rec)
	if err != nil && !isUncertain(err) {
		req.Result <- err
		return
	}

	// 2. 更新記憶體
	l.mu.Lock()
	applyErr := l.store.apply(rec)
	l.mu.Unlock()
	if applyErr != nil {
		req.Result <- applyErr
		return
	}
	if req.Create {
		req.Accounts[0].Version = 1
	} else {
		bumpVersions(rec, req.Accounts)
	}

	// 3. 回傳結果
	req.Result <- err
}

var _ usecase.AccountRepository = (*LMAXRepository)(nil)
