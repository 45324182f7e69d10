package businessflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/amirphl/Amaterasu/app/dto"
	"github.com/amirphl/Amaterasu/models"
	"github.com/amirphl/Amaterasu/repository"
	"github.com/amirphl/Amaterasu/utils"
	"gorm.io/gorm"
)

// CustomerFlow handles the customers campaigns are sent for
type CustomerFlow interface {
	CreateCustomer(ctx context.Context, req *dto.CreateCustomerRequest) (*dto.CustomerResponse, error)
	GetCustomer(ctx context.Context, customerUUID string) (*dto.CustomerResponse, error)
	ListCustomers(ctx context.Context, req *dto.ListCustomersRequest) (*dto.ListCustomersResponse, error)
}

// CustomerFlowImpl implements CustomerFlow
type CustomerFlowImpl struct {
	customerRepo repository.CustomerRepository
}

func NewCustomerFlow(customerRepo repository.CustomerRepository) CustomerFlow {
	return &CustomerFlowImpl{customerRepo: customerRepo}
}

func (f *CustomerFlowImpl) CreateCustomer(ctx context.Context, req *dto.CreateCustomerRequest) (*dto.CustomerResponse, error) {
	code := strings.ToLower(strings.TrimSpace(req.Code))
	existing, err := f.customerRepo.ByCode(ctx, code)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to lookup customer", err)
	}
	if existing != nil {
		return nil, NewBusinessError("CUSTOMER_CODE_EXISTS", "Customer code already exists", ErrCustomerCodeExists)
	}

	customer := &models.Customer{
		Code:      code,
		Name:      strings.TrimSpace(req.Name),
		ServiceID: strings.TrimSpace(req.ServiceID),
	}
	if err := f.customerRepo.Save(ctx, customer); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, NewBusinessError("CUSTOMER_CODE_EXISTS", "Customer code already exists", ErrCustomerCodeExists)
		}
		return nil, NewBusinessError("CUSTOMER_CREATE_FAILED", "Failed to create customer", err)
	}
	return customerResponse(customer), nil
}

func (f *CustomerFlowImpl) GetCustomer(ctx context.Context, customerUUID string) (*dto.CustomerResponse, error) {
	customer, err := f.customerRepo.ByUUID(ctx, customerUUID)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to lookup customer", err)
	}
	if customer == nil {
		return nil, NewBusinessError("CUSTOMER_NOT_FOUND", "Customer not found", ErrCustomerNotFound)
	}
	return customerResponse(customer), nil
}

func (f *CustomerFlowImpl) ListCustomers(ctx context.Context, req *dto.ListCustomersRequest) (*dto.ListCustomersResponse, error) {
	filter := models.CustomerFilter{}
	if req.Name != "" {
		filter.Name = &req.Name
	}
	limit := utils.ClampLimit(req.Limit, utils.DefaultRunListLimit, utils.MaxRunListLimit)
	customers, err := f.customerRepo.ByFilter(ctx, filter, "name ASC", limit, 0)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_LIST_FAILED", "Failed to list customers", err)
	}
	items := make([]dto.CustomerResponse, 0, len(customers))
	for _, c := range customers {
		items = append(items, *customerResponse(c))
	}
	return &dto.ListCustomersResponse{Items: items}, nil
}

func customerResponse(c *models.Customer) *dto.CustomerResponse {
	return &dto.CustomerResponse{
		UUID:      c.UUID.String(),
		Code:      c.Code,
		Name:      c.Name,
		ServiceID: c.ServiceID,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
	}
}
