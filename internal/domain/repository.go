package domain

import "time"

// StepRepository описывает требования к хранилищу каталога этапов.
type StepRepository interface {
	// Create сохраняет новый этап каталога.
	Create(step Step) error
	// Get возвращает этап по идентификатору или ErrNotFound, если его нет.
	Get(id string) (Step, error)
	// ListAll возвращает весь каталог по возрастанию номера; этапы без номера — в конце.
	ListAll() ([]Step, error)
}

// StepAssignmentRepository хранит назначения этапов клиентам.
type StepAssignmentRepository interface {
	// Create сохраняет новое назначение. Возвращает ErrAlreadyExists при дубликате пары.
	Create(assignment ClientStepAssignment) error
	// Get возвращает назначение по паре (clientID, stepID) или ErrNotFound.
	Get(clientID, stepID string) (ClientStepAssignment, error)
	// ListByClient возвращает назначения клиента по возрастанию позиции.
	ListByClient(clientID string) ([]ClientStepAssignment, error)
	// Save применяет обновления позиции и активности назначения.
	Save(assignment ClientStepAssignment) error
	// Delete удаляет назначение; ErrNotFound, если его не было.
	Delete(clientID, stepID string) error
	// DeleteExcept удаляет все назначения клиента, кроме перечисленных этапов.
	// Возвращает число удалённых записей.
	DeleteExcept(clientID string, keepStepIDs []string) (int, error)
}

// ShipmentRepository описывает требования к хранилищу операций.
type ShipmentRepository interface {
	// Create сохраняет новую операцию.
	Create(shipment Shipment) error
	// Get возвращает операцию по идентификатору или ErrNotFound.
	Get(id string) (Shipment, error)
	// ListByClient возвращает операции клиента с опциональным ограничением на количество.
	ListByClient(clientID string, limit int) ([]Shipment, error)
}

// TrackingRepository хранит записи отслеживания этапов груза.
type TrackingRepository interface {
	// Create сохраняет новую запись. Возвращает ErrAlreadyExists,
	// если запись на пару (shipmentID, stepNumber) уже есть.
	Create(tracking ShipmentTracking) error
	// Get возвращает запись по паре (shipmentID, stepNumber) или ErrNotFound.
	Get(shipmentID string, stepNumber int) (ShipmentTracking, error)
	// GetByID возвращает запись по идентификатору или ErrNotFound.
	GetByID(id string) (ShipmentTracking, error)
	// ListByShipment возвращает все записи груза по возрастанию номера этапа.
	ListByShipment(shipmentID string) ([]ShipmentTracking, error)
	// Save применяет обновления к записи с учётом optimistic locking.
	Save(tracking ShipmentTracking) error
}

// RevisionRepository хранит журнал ревизий.
type RevisionRepository interface {
	// Append добавляет ревизию в журнал.
	Append(revision Revision) error
	// AppendWithTracking атомарно добавляет ревизию и сохраняет обновлённую
	// запись отслеживания: при конфликте или ошибке ревизия не сохраняется.
	AppendWithTracking(revision Revision, tracking ShipmentTracking) error
	// ListByTracking возвращает ревизии записи от новых к старым.
	ListByTracking(trackingID string) ([]Revision, error)
}

// DocumentCategoryRepository хранит справочник категорий документов.
type DocumentCategoryRepository interface {
	// Create сохраняет новую категорию.
	Create(category DocumentCategory) error
	// Get возвращает категорию по идентификатору или ErrNotFound.
	Get(id string) (DocumentCategory, error)
	// ListAll возвращает справочник по возрастанию порядка отображения.
	ListAll() ([]DocumentCategory, error)
}

// DocumentRepository хранит документы досье клиентов.
type DocumentRepository interface {
	// Create сохраняет новый документ.
	Create(document ClientDocument) error
	// Get возвращает документ по идентификатору или ErrNotFound.
	Get(id string) (ClientDocument, error)
	// ListByClient возвращает документы клиента.
	ListByClient(clientID string) ([]ClientDocument, error)
	// ListByStatus возвращает документы в указанном статусе.
	ListByStatus(status DocumentStatus) ([]ClientDocument, error)
	// ListApprovedExpiring возвращает принятые документы с датой истечения
	// в границах [from, to] включительно.
	ListApprovedExpiring(from, to time.Time) ([]ClientDocument, error)
	// ApprovedCategoryIDs возвращает категории, в которых у клиента есть
	// хотя бы один принятый документ (без дубликатов).
	ApprovedCategoryIDs(clientID string) ([]string, error)
	// Save применяет обновления к документу с учётом optimistic locking.
	Save(document ClientDocument) error
	// MarkExpired переводит в expired все документы со статусом pending или
	// approved, чья дата истечения раньше today. Возвращает идентификаторы
	// переведённых документов; повторный запуск с той же датой ничего не меняет.
	MarkExpired(today time.Time) ([]string, error)
}

// ClientRepository описывает требования к хранилищу клиентов.
type ClientRepository interface {
	// Create сохраняет нового клиента.
	Create(client Client) error
	// Get возвращает клиента по идентификатору или ErrNotFound.
	Get(id string) (Client, error)
	// ListVisible возвращает клиентов, участвующих в сверках.
	ListVisible() ([]Client, error)
	// Save применяет обновления к клиенту с учётом optimistic locking.
	Save(client Client) error
}

// VerificationRepository хранит историю проверок по внешним спискам.
type VerificationRepository interface {
	// Append добавляет запись проверки в историю.
	Append(verification ExternalListVerification) error
	// ListByClient возвращает проверки клиента от новых к старым
	// с опциональным ограничением на количество.
	ListByClient(clientID string, limit int) ([]ExternalListVerification, error)
}

// NotificationRepository хранит уведомления с дедупликацией по ключу (тип, субъект).
type NotificationRepository interface {
	// GetOrCreate атомарно возвращает существующее уведомление по ключу
	// (Type, Subject) либо сохраняет и возвращает новое. Второй результат —
	// признак того, что запись была создана этим вызовом.
	GetOrCreate(notification Notification) (Notification, bool, error)
	// Get возвращает уведомление по идентификатору или ErrNotFound.
	Get(id string) (Notification, error)
	// ListUnread возвращает непрочитанные уведомления от новых к старым.
	ListUnread(limit int) ([]Notification, error)
	// MarkRead помечает уведомление прочитанным.
	MarkRead(id string, at time.Time) error
	// DeleteReadBefore удаляет прочитанные уведомления старше указанного момента,
	// не более limit за вызов. Возвращает число удалённых записей.
	DeleteReadBefore(before time.Time, limit int) (int, error)
}
